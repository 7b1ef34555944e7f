package repository

import (
	"encoding/json"
	"fmt"
)

// encodeTags renders tags the way the kudos json serializer stores them,
// for map-based updates that bypass the struct serializer.
func encodeTags(tags []string) (string, error) {
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}
