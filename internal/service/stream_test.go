package service

import (
	"net/http/httptest"
	"strings"
	"testing"
)

// streamContent — тестовый файл на 1000 байт с предсказуемыми байтами.
func streamContent() string {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteByte(byte('a' + i%26))
	}
	return b.String()
}

// doStream выполняет запрос потоковой отдачи и возвращает рекордер.
func doStream(t *testing.T, f *fixture, code string, index int, rangeHeader string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest("GET", "/stream/"+code+"/0", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	w := httptest.NewRecorder()

	if streamErr := f.stream.Serve(w, req, code, index); streamErr != nil {
		t.Fatalf("ошибка потоковой отдачи: %v", streamErr)
	}
	return w
}

// TestServe_FullFile проверяет полную отдачу без заголовка Range.
func TestServe_FullFile(t *testing.T) {
	f := newFixture(t)
	content := streamContent()
	code := f.uploadFiles(t, false, namedFile{"clip.mp4", content})

	w := doStream(t, f, code, 0, "")

	if w.Code != 200 {
		t.Errorf("ожидался статус 200, получен %d", w.Code)
	}
	if got := w.Body.String(); got != content {
		t.Errorf("тело ответа не совпадает: %d байт вместо %d", len(got), len(content))
	}
	if ar := w.Header().Get("Accept-Ranges"); ar != "bytes" {
		t.Errorf("заголовок Accept-Ranges: %q", ar)
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("заголовок Content-Type: %q", ct)
	}
}

// TestServe_Range проверяет отдачу среза bytes=200-299.
func TestServe_Range(t *testing.T) {
	f := newFixture(t)
	content := streamContent()
	code := f.uploadFiles(t, false, namedFile{"clip.mp4", content})

	w := doStream(t, f, code, 0, "bytes=200-299")

	if w.Code != 206 {
		t.Errorf("ожидался статус 206, получен %d", w.Code)
	}
	if got := w.Body.String(); got != content[200:300] {
		t.Errorf("срез не совпадает: %d байт", len(got))
	}
	if cr := w.Header().Get("Content-Range"); cr != "bytes 200-299/1000" {
		t.Errorf("заголовок Content-Range: %q", cr)
	}
	if cl := w.Header().Get("Content-Length"); cl != "100" {
		t.Errorf("заголовок Content-Length: %q", cl)
	}
}

// TestServe_OpenEndedRange проверяет срез без конца: bytes=900-.
func TestServe_OpenEndedRange(t *testing.T) {
	f := newFixture(t)
	content := streamContent()
	code := f.uploadFiles(t, false, namedFile{"clip.mp4", content})

	w := doStream(t, f, code, 0, "bytes=900-")

	if w.Code != 206 {
		t.Errorf("ожидался статус 206, получен %d", w.Code)
	}
	if got := w.Body.String(); got != content[900:] {
		t.Errorf("срез не совпадает: %d байт", len(got))
	}
	if cr := w.Header().Get("Content-Range"); cr != "bytes 900-999/1000" {
		t.Errorf("заголовок Content-Range: %q", cr)
	}
}

// TestServe_RangeClamped проверяет прижатие конца среза к размеру файла.
func TestServe_RangeClamped(t *testing.T) {
	f := newFixture(t)
	content := streamContent()
	code := f.uploadFiles(t, false, namedFile{"clip.mp4", content})

	w := doStream(t, f, code, 0, "bytes=990-5000")

	if w.Code != 206 {
		t.Errorf("ожидался статус 206, получен %d", w.Code)
	}
	if cr := w.Header().Get("Content-Range"); cr != "bytes 990-999/1000" {
		t.Errorf("заголовок Content-Range: %q", cr)
	}
}

// TestServe_MalformedRange проверяет деградацию некорректного Range
// до полной отдачи вместо ошибки.
func TestServe_MalformedRange(t *testing.T) {
	f := newFixture(t)
	content := streamContent()
	code := f.uploadFiles(t, false, namedFile{"clip.mp4", content})

	for _, header := range []string{"bytes=abc-def", "items=0-10", "bytes=-", "bytes=500-100"} {
		w := doStream(t, f, code, 0, header)
		if w.Code != 200 {
			t.Errorf("Range %q: ожидался статус 200, получен %d", header, w.Code)
		}
		if w.Body.Len() != len(content) {
			t.Errorf("Range %q: ожидалась полная отдача, получено %d байт", header, w.Body.Len())
		}
	}
}

// TestServe_NotFound проверяет 404 для неизвестного кода
// и индекса за границами записи.
func TestServe_NotFound(t *testing.T) {
	f := newFixture(t)
	code := f.uploadFiles(t, false, namedFile{"clip.mp4", "data"})

	req := httptest.NewRequest("GET", "/stream/x/0", nil)

	if streamErr := f.stream.Serve(httptest.NewRecorder(), req, "unknown1", 0); streamErr == nil {
		t.Error("неизвестный код должен возвращать ошибку")
	} else if streamErr.StatusCode != 404 {
		t.Errorf("ожидался статус 404, получен %d", streamErr.StatusCode)
	}

	for _, index := range []int{-1, 1, 100} {
		if streamErr := f.stream.Serve(httptest.NewRecorder(), req, code, index); streamErr == nil {
			t.Errorf("индекс %d вне записи должен возвращать ошибку", index)
		}
	}
}

// TestServe_DoesNotConsumeRecord проверяет, что потоковая отдача
// не сжигает одноразовую запись: после множества стримов полная
// выдача всё ещё работает (и только она удаляет запись).
func TestServe_DoesNotConsumeRecord(t *testing.T) {
	f := newFixture(t)
	code := f.uploadFiles(t, true, namedFile{"clip.mp4", streamContent()})

	for i := 0; i < 10; i++ {
		doStream(t, f, code, 0, "bytes=0-99")
	}

	rec := f.reg.Get(code)
	if rec == nil {
		t.Fatal("запись удалена потоковой отдачей")
	}
	if len(rec.Downloads) != 0 {
		t.Errorf("потоковая отдача не должна писать в журнал: %d отметок", len(rec.Downloads))
	}

	result, retrieveErr := f.retrieve.Retrieve(code)
	if retrieveErr != nil {
		t.Fatalf("полная выдача после стримов должна работать: %v", retrieveErr)
	}
	result.File.Close()

	if f.reg.Get(code) != nil {
		t.Error("одноразовая запись не удалена после полной выдачи")
	}
}
