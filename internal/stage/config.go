package stage

import (
	"bytes"
	"encoding/json"

	"slidewright/internal/services"
)

// DecodeConfig unmarshals raw stage options into dst, leaving dst untouched
// when raw is empty. Unknown fields are rejected so typos surface as
// InvalidConfig instead of being silently ignored.
func DecodeConfig(stageName string, raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return services.Wrap(services.ErrInvalidConfig, stageName, "decode options", "stage options are not valid", err)
	}
	return nil
}
