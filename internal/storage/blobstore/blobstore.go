// Пакет blobstore — операции с физическими файлами на диске.
// Размещает загруженные файлы под именами с префиксом кода доступа
// ({code}_{имя}), чтобы записи с одинаковыми именами файлов
// не конфликтовали. Оригинальное имя хранится отдельно в записи.
package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store — управление физическими файлами на диске.
type Store struct {
	// dataDir — корневая директория хранения файлов (FR_DATA_DIR)
	dataDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — имя файла относительно dataDir ({code}_{имя})
	StoragePath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// DisplayName — санитизированное оригинальное имя
	DisplayName string
	// Size — размер записанных данных в байтах
	Size int64
}

// New создаёт новый Store. Проверяет и создаёт директорию,
// если она не существует.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Save записывает данные из reader на диск под именем {code}_{имя}.
// Имя файла санитизируется: отбрасываются компоненты пути и
// небезопасные символы.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется.
func (s *Store) Save(code, originalName string, reader io.Reader) (*SaveResult, error) {
	displayName := SanitizeFilename(originalName)
	storagePath := fmt.Sprintf("%s_%s", code, displayName)
	fullPath := filepath.Join(s.dataDir, storagePath)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoragePath: storagePath,
		FullPath:    fullPath,
		DisplayName: displayName,
		Size:        size,
	}, nil
}

// Open открывает файл для чтения.
// storagePath — имя файла относительно dataDir.
// Вызывающий код обязан закрыть файл.
func (s *Store) Open(storagePath string) (*os.File, error) {
	fullPath := filepath.Join(s.dataDir, storagePath)

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("файл не найден: %s", storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}
	return f, nil
}

// FullPath возвращает абсолютный путь к файлу на диске.
func (s *Store) FullPath(storagePath string) string {
	return filepath.Join(s.dataDir, storagePath)
}

// BundlePath возвращает путь временного zip-артефакта записи.
func (s *Store) BundlePath(code string) string {
	return filepath.Join(s.dataDir, code+".zip")
}

// Delete удаляет файл с диска.
// Возвращает nil, если файл уже не существует.
func (s *Store) Delete(storagePath string) error {
	err := os.Remove(filepath.Join(s.dataDir, storagePath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// Exists проверяет существование файла на диске.
func (s *Store) Exists(storagePath string) bool {
	_, err := os.Stat(filepath.Join(s.dataDir, storagePath))
	return err == nil
}

// Size возвращает размер файла на диске.
func (s *Store) Size(storagePath string) (int64, error) {
	info, err := os.Stat(filepath.Join(s.dataDir, storagePath))
	if err != nil {
		return 0, fmt.Errorf("ошибка получения информации о файле %s: %w", storagePath, err)
	}
	return info.Size(), nil
}

// Entries возвращает имена всех файлов в dataDir (без поддиректорий).
// Используется при стартовой очистке осиротевших blob-ов.
func (s *Store) Entries() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", s.dataDir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// DataDir возвращает путь к директории данных.
func (s *Store) DataDir() string {
	return s.dataDir
}

// SanitizeFilename приводит имя файла к безопасному виду:
// отбрасывает компоненты пути (включая Windows-разделители),
// оставляет только буквы, цифры, дефис, подчёркивание и точку.
// Пустой результат заменяется на "file".
func SanitizeFilename(name string) string {
	// Отбрасываем путь: берём последний сегмент после / и \
	if i := strings.LastIndexAny(name, `/\`); i != -1 {
		name = name[i+1:]
	}

	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}

	// Убираем ведущие точки: ".." и скрытые файлы превращаются в обычные имена
	cleaned := strings.TrimLeft(result.String(), ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}
