package eventbus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LandblockCoord координата лэндблока в событии LandblockChanged.
type LandblockCoord struct {
	X uint8 `json:"x"`
	Y uint8 `json:"y"`
}

// LandblockChangedPayload полезная нагрузка события LandblockChanged.
// Рендерер инвалидирует только перечисленные тайлы.
type LandblockChangedPayload struct {
	RegionID   uint32           `json:"region_id"`
	Landblocks []LandblockCoord `json:"landblocks"`
}

// LayerTreeChangedPayload полезная нагрузка события LayerTreeChanged.
type LayerTreeChangedPayload struct {
	RegionID uint32 `json:"region_id"`
	LayerID  string `json:"layer_id,omitempty"`
}

// DocumentSavedPayload полезная нагрузка события DocumentSaved.
type DocumentSavedPayload struct {
	RegionID          uint32 `json:"region_id"`
	LandblocksWritten int    `json:"landblocks_written"`
}

// NewEnvelope собирает Envelope с заполненными служебными полями.
func NewEnvelope(source, eventType string, priority int, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: eventType,
		Version:   1,
		Priority:  priority,
		Payload:   data,
	}, nil
}
