package record

// MetaBatchID is the metadata key under which fetch stores the engine batch
// id of a Chunk.
const MetaBatchID = "BATCH_ID"

// Chunk is the unit handed downstream and acknowledged as a whole.
type Chunk struct {
	Records        []*Record
	FirstEntryTime int64
	PayloadSize    int64

	meta map[string]any
}

func NewChunk(records []*Record, firstEntryTime, payloadSize int64) *Chunk {
	return &Chunk{
		Records:        records,
		FirstEntryTime: firstEntryTime,
		PayloadSize:    payloadSize,
		meta:           map[string]any{},
	}
}

func (c *Chunk) PutMeta(key string, v any) {
	if c.meta == nil {
		c.meta = map[string]any{}
	}
	c.meta[key] = v
}

func (c *Chunk) Meta(key string) (any, bool) {
	v, ok := c.meta[key]
	return v, ok
}

// BatchID reports the engine batch id stored by fetch.
func (c *Chunk) BatchID() (int64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.meta[MetaBatchID].(int64)
	return v, ok
}
