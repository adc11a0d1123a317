// Пакет service — бизнес-логика File Relay.
// codes.go — генерация кодов доступа и админ-секрета.
package service

import (
	"crypto/rand"
	"fmt"

	"github.com/JRobber66/FileBackend/internal/storage/registry"
)

// codeAlphabet — фиксированный алфавит кодов: 62 символа.
const codeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// CodeLength — длина кода доступа.
	CodeLength = 8
	// SecretLength — длина админ-секрета, генерируемого при старте.
	SecretLength = 32
	// maxCodeAttempts — предел повторных попыток при коллизии кода.
	maxCodeAttempts = 8
)

// CodeGenerator — генератор кодов доступа с проверкой коллизий
// по живым записям реестра.
type CodeGenerator struct {
	reg *registry.Registry
}

// NewCodeGenerator создаёт генератор кодов.
func NewCodeGenerator(reg *registry.Registry) *CodeGenerator {
	return &CodeGenerator{reg: reg}
}

// Generate возвращает новый код, не занятый живой записью.
// Вероятность коллизии при ожидаемой нагрузке пренебрежимо мала
// (62^8 комбинаций), но занятый код перегенерируется; если за
// maxCodeAttempts попыток свободный код не найден — это ошибка,
// молча перезаписывать существующую запись нельзя.
func (g *CodeGenerator) Generate() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomString(CodeLength)
		if !g.reg.Contains(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("не удалось сгенерировать свободный код за %d попыток", maxCodeAttempts)
}

// NewAdminSecret генерирует админ-секрет процесса.
// Вызывается один раз при старте; секрет живёт только в памяти.
func NewAdminSecret() string {
	return randomString(SecretLength)
}

// randomString возвращает строку длины n из символов codeAlphabet,
// равномерно случайных (rejection sampling, без modulo bias).
func randomString(n int) string {
	// 248 = 62 * 4 — наибольшее кратное размеру алфавита в байте
	const limit = byte(len(codeAlphabet) * (256 / len(codeAlphabet)))

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand.Read не возвращает ошибок на поддерживаемых ОС
			panic(fmt.Sprintf("crypto/rand: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
