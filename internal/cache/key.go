package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
)

// keyMaterial is the canonical shape hashed into a cache key. Field order
// is fixed by the struct so the JSON encoding is stable.
type keyMaterial struct {
	Namespace         string  `json:"namespace"`
	ModelID           string  `json:"modelId"`
	SystemPrompt      string  `json:"systemPrompt"`
	UserContent       string  `json:"userContent"`
	TemperatureBucket float64 `json:"temperatureBucket"`
	MaxTokens         int     `json:"maxTokens"`
}

// Key derives the content-hash key for a request. Temperature is bucketed
// to 0.1 so float noise does not defeat reuse.
func Key(namespace, modelID, systemPrompt, userContent string, temperature float64, maxTokens int) string {
	material := keyMaterial{
		Namespace:         namespace,
		ModelID:           modelID,
		SystemPrompt:      systemPrompt,
		UserContent:       userContent,
		TemperatureBucket: bucketTemperature(temperature),
		MaxTokens:         maxTokens,
	}

	data, err := json.Marshal(material)
	if err != nil {
		// Marshal of a flat struct cannot fail; keep a deterministic key anyway.
		data = []byte(namespace + "|" + modelID + "|" + userContent)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func bucketTemperature(t float64) float64 {
	return math.Round(t*10) / 10
}
