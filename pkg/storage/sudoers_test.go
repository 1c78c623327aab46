package storage

import (
	"path/filepath"
	"testing"
)

func TestSudoers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sudoers.json")
	s, err := LoadSudoers(path, 1)
	if err != nil {
		t.Fatalf("LoadSudoers: %v", err)
	}
	if !s.IsAuthorized(1) || !s.IsOwner(1) {
		t.Fatalf("владелец должен быть авторизован")
	}
	if s.IsAuthorized(2) {
		t.Fatalf("посторонний не должен быть авторизован")
	}

	if ok, err := s.Add(2); !ok || err != nil {
		t.Fatalf("Add(2): %v %v", ok, err)
	}
	if ok, _ := s.Add(2); ok {
		t.Fatalf("повторное добавление должно вернуть false")
	}
	if ok, _ := s.Add(1); ok {
		t.Fatalf("владельца нельзя добавить в список")
	}

	reloaded, err := LoadSudoers(path, 1)
	if err != nil {
		t.Fatalf("перезагрузка: %v", err)
	}
	if !reloaded.IsAuthorized(2) {
		t.Fatalf("администратор должен сохраниться в файле")
	}

	if ok, _ := reloaded.Remove(2); !ok {
		t.Fatalf("Remove(2) должен вернуть true")
	}
	if ok, _ := reloaded.Remove(2); ok {
		t.Fatalf("повторное удаление должно вернуть false")
	}
	if len(reloaded.List()) != 0 {
		t.Fatalf("список должен быть пуст")
	}
}
