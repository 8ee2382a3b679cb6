package port

import "regrag/internal/domain"

// ObjectSource lists and reads raw document bytes. The pipeline never
// mutates the source.
type ObjectSource interface {
	List() ([]domain.ObjectInfo, error)

	Read(name string) ([]byte, error)
}
