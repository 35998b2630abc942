package store

import "fmt"

func errSessionNotFound(id string) error {
	return fmt.Errorf("session %s not found", id)
}
