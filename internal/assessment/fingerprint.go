package assessment

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Fingerprint returns the stable content hash of the request's semantic
// fields. Identical snapshots hash identically across processes; evidence is
// part of the hash, so a dispute re-assessment never collides with the
// original checkpoint's entry.
func (r Request) Fingerprint() string {
	payload := struct {
		ProjectID    string            `json:"project_id"`
		Kind         Kind              `json:"kind"`
		Description  string            `json:"description"`
		Budget       float64           `json:"budget"`
		Deliverables []DeliverableSpec `json:"deliverables"`
		Submitted    []string          `json:"submitted"`
		Evidence     *Evidence         `json:"evidence"`
	}{
		ProjectID:    r.ProjectID.String(),
		Kind:         r.Kind,
		Description:  r.Description,
		Budget:       r.Budget,
		Deliverables: r.Deliverables,
		Submitted:    r.Submitted,
		Evidence:     r.Evidence,
	}

	// Struct fields marshal in declaration order, so the encoding is stable.
	data, err := json.Marshal(payload)
	if err != nil {
		// Only unmarshalable types can fail here; the payload has none.
		panic(fmt.Sprintf("fingerprint marshal: %v", err))
	}

	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}
