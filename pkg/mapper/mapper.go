// Package mapper provides the public factory for Loom mappers. The
// implementation lives in internal/mapper; callers program against the
// types.Mapper interface.
package mapper

import (
	"github.com/mesh-intelligence/loom/internal/mapper"
	"github.com/mesh-intelligence/loom/pkg/types"
)

// New builds a mapper for one entity role from the given capabilities.
//
// Example:
//
//	m, err := mapper.New(types.MapperConfig{
//	    Source:     types.TableSource{DB: "main", Name: "users"},
//	    PrimaryKey: "id",
//	    Fetcher:    types.FetchFunc(fetchUserColumns),
//	})
func New(cfg types.MapperConfig) (types.Mapper, error) {
	return mapper.New(cfg)
}
