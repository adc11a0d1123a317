package service

import (
	"io"
	"os"
	"testing"

	"github.com/klauspost/compress/zip"
)

// readAll читает и закрывает файл выдачи.
func readAll(t *testing.T, result *RetrieveResult) []byte {
	t.Helper()
	defer result.File.Close()

	data, err := io.ReadAll(result.File)
	if err != nil {
		t.Fatalf("ошибка чтения выдачи: %v", err)
	}
	return data
}

// TestRetrieve_SingleFile проверяет round-trip одиночного файла:
// байты и оригинальное имя, без внутреннего префикса кода.
func TestRetrieve_SingleFile(t *testing.T) {
	f := newFixture(t)
	code := f.uploadFiles(t, false, namedFile{"report.pdf", "pdf-bytes"})

	result, retrieveErr := f.retrieve.Retrieve(code)
	if retrieveErr != nil {
		t.Fatalf("ошибка выдачи: %v", retrieveErr)
	}

	if result.Filename != "report.pdf" {
		t.Errorf("ожидалось имя report.pdf, получено %q", result.Filename)
	}
	if result.ContentType != "application/pdf" {
		t.Errorf("ожидался тип application/pdf, получен %q", result.ContentType)
	}
	if got := readAll(t, result); string(got) != "pdf-bytes" {
		t.Errorf("содержимое не совпадает: %q", got)
	}
}

// TestRetrieve_NotFound проверяет выдачу по неизвестному коду.
func TestRetrieve_NotFound(t *testing.T) {
	f := newFixture(t)

	_, retrieveErr := f.retrieve.Retrieve("unknown1")
	if retrieveErr == nil {
		t.Fatal("выдача по неизвестному коду должна возвращать ошибку")
	}
	if retrieveErr.StatusCode != 404 {
		t.Errorf("ожидался статус 404, получен %d", retrieveErr.StatusCode)
	}
}

// TestRetrieve_Bundle проверяет сборку zip-бандла: имена и содержимое
// файлов восстанавливаются без префикса кода.
func TestRetrieve_Bundle(t *testing.T) {
	f := newFixture(t)
	code := f.uploadFiles(t, false,
		namedFile{"a.txt", "hello"},
		namedFile{"b.txt", "world"},
	)

	result, retrieveErr := f.retrieve.Retrieve(code)
	if retrieveErr != nil {
		t.Fatalf("ошибка выдачи: %v", retrieveErr)
	}
	defer result.File.Close()

	if result.Filename != code+".zip" {
		t.Errorf("ожидалось имя %s.zip, получено %q", code, result.Filename)
	}
	if result.ContentType != "application/zip" {
		t.Errorf("ожидался тип application/zip, получен %q", result.ContentType)
	}

	zr, err := zip.NewReader(result.File, result.Size)
	if err != nil {
		t.Fatalf("выдача не является корректным zip: %v", err)
	}

	want := map[string]string{"a.txt": "hello", "b.txt": "world"}
	if len(zr.File) != len(want) {
		t.Fatalf("ожидалось %d файлов в архиве, получено %d", len(want), len(zr.File))
	}
	for _, zf := range zr.File {
		expected, ok := want[zf.Name]
		if !ok {
			t.Errorf("неожиданный файл в архиве: %s", zf.Name)
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("ошибка открытия %s: %v", zf.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != expected {
			t.Errorf("содержимое %s: ожидалось %q, получено %q", zf.Name, expected, data)
		}
	}
}

// TestRetrieve_BundleRebuilt проверяет пересборку артефакта на каждый
// запрос: устаревший артефакт от прошлого запроса перезаписывается.
func TestRetrieve_BundleRebuilt(t *testing.T) {
	f := newFixture(t)
	code := f.uploadFiles(t, false,
		namedFile{"a.txt", "hello"},
		namedFile{"b.txt", "world"},
	)

	// Подкладываем мусор на место артефакта
	if err := os.WriteFile(f.store.BundlePath(code), []byte("stale garbage"), 0o600); err != nil {
		t.Fatalf("ошибка записи устаревшего артефакта: %v", err)
	}

	result, retrieveErr := f.retrieve.Retrieve(code)
	if retrieveErr != nil {
		t.Fatalf("ошибка выдачи: %v", retrieveErr)
	}
	defer result.File.Close()

	if _, err := zip.NewReader(result.File, result.Size); err != nil {
		t.Errorf("артефакт не пересобран: %v", err)
	}
}

// TestRetrieve_AppendsDownloadLog проверяет журнал скачиваний:
// одна отметка на выдачу.
func TestRetrieve_AppendsDownloadLog(t *testing.T) {
	f := newFixture(t)
	code := f.uploadFiles(t, false, namedFile{"a.txt", "hello"})

	for i := 0; i < 3; i++ {
		result, retrieveErr := f.retrieve.Retrieve(code)
		if retrieveErr != nil {
			t.Fatalf("ошибка выдачи: %v", retrieveErr)
		}
		result.File.Close()
	}

	rec := f.reg.Get(code)
	if len(rec.Downloads) != 3 {
		t.Errorf("ожидалось 3 отметки скачивания, получено %d", len(rec.Downloads))
	}
}

// TestRetrieve_DeleteAfterDownload проверяет одноразовую запись:
// после первой выдачи запись и blob-ы удалены.
func TestRetrieve_DeleteAfterDownload(t *testing.T) {
	f := newFixture(t)
	code := f.uploadFiles(t, true, namedFile{"a.txt", "hello"})
	rec := f.reg.Get(code)

	result, retrieveErr := f.retrieve.Retrieve(code)
	if retrieveErr != nil {
		t.Fatalf("первая выдача должна работать: %v", retrieveErr)
	}

	// Дескриптор открыт до удаления — содержимое дочитывается
	if got := readAll(t, result); string(got) != "hello" {
		t.Errorf("содержимое не совпадает: %q", got)
	}

	if _, retrieveErr := f.retrieve.Retrieve(code); retrieveErr == nil {
		t.Error("вторая выдача одноразовой записи должна возвращать not found")
	}
	for _, sf := range rec.Files {
		if f.store.Exists(sf.StoragePath) {
			t.Errorf("blob %s остался после одноразовой выдачи", sf.StoragePath)
		}
	}
}

// TestDescribe проверяет метаданные записи.
func TestDescribe(t *testing.T) {
	f := newFixture(t)
	code := f.uploadFiles(t, true,
		namedFile{"clip.mp4", "videodata"},
		namedFile{"photo.png", "pngdata"},
	)

	meta, metaErr := f.retrieve.Describe(code)
	if metaErr != nil {
		t.Fatalf("ошибка описания: %v", metaErr)
	}

	if meta.Code != code {
		t.Errorf("ожидался код %s, получен %s", code, meta.Code)
	}
	if !meta.DeleteAfter {
		t.Error("флаг delete_after не передан в метаданные")
	}
	if len(meta.Files) != 2 {
		t.Fatalf("ожидалось 2 файла, получено %d", len(meta.Files))
	}

	video := meta.Files[0]
	if video.Index != 0 || video.Name != "clip.mp4" {
		t.Errorf("первый файл: %+v", video)
	}
	if !video.IsVideo || video.IsImage || video.IsAudio {
		t.Errorf("классификация clip.mp4: %+v", video)
	}
	if video.Size != int64(len("videodata")) {
		t.Errorf("размер clip.mp4: ожидалось %d, получено %d", len("videodata"), video.Size)
	}
	if video.StreamURL != "/stream/"+code+"/0" {
		t.Errorf("stream_url: %s", video.StreamURL)
	}

	image := meta.Files[1]
	if !image.IsImage || image.IsVideo {
		t.Errorf("классификация photo.png: %+v", image)
	}

	if _, metaErr := f.retrieve.Describe("unknown1"); metaErr == nil {
		t.Error("описание неизвестного кода должно возвращать ошибку")
	}
}
