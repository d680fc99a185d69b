// Package storage содержит утилиты безопасной работы с локальными файлами:
//   - EnsureDir гарантирует наличие каталога для целевого пути;
//   - AtomicWriteFile выполняет запись «всё или ничего» через временный файл и rename.
//
// Используется кэшем пиров (bbolt-файл) и CLI при сохранении отчётов анализа.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"telegram-sentiment/internal/infra/logger"
)

// DefaultFilePerm: права на файлы с чувствительными данными (только владелец).
const DefaultFilePerm os.FileMode = 0o600

// EnsureDir создаёт каталог для path с правами 0o700. "." и пустой каталог пропускаются.
func EnsureDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile пишет data во временный файл рядом с path, синхронизирует его и
// переименовывает поверх path. Либо остаётся старый файл, либо полностью новый.
// rename атомарен только в пределах одного тома, поэтому temp создаётся в том же каталоге.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(clean)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeAndSync(tmp, data, perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	// fsync каталога фиксирует запись имени; на части ФС не поддерживается.
	if dirFile, openErr := os.Open(dir); openErr == nil {
		if syncErr := dirFile.Sync(); syncErr != nil {
			logger.Debugf("AtomicWriteFile: dir sync %s: %v", dir, syncErr)
		}
		_ = dirFile.Close()
	}
	return nil
}

func writeAndSync(f *os.File, data []byte, perm os.FileMode) error {
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return nil
}
