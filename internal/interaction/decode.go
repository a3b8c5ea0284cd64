package interaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var ErrMalformedPayload = errors.New("malformed interaction payload")

// Decode parses body into its variant. Unknown discriminants decode to
// *Unsupported rather than an error.
func Decode(body []byte) (Interaction, error) {
	// Wider than Type so out-of-range discriminants stay Unsupported.
	var head struct {
		Type int64 `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	target := variantFor(head.Type)
	if target == nil {
		raw := make(json.RawMessage, len(body))
		copy(raw, body)
		return &Unsupported{Kind: head.Type, Raw: raw}, nil
	}

	if err := json.Unmarshal(body, target); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", ErrMalformedPayload, target.InteractionType(), err)
	}
	return target, nil
}

func variantFor(kind int64) Interaction {
	if kind < 0 || kind > math.MaxUint8 {
		return nil
	}
	switch Type(kind) {
	case TypePing:
		return &Ping{}
	case TypeApplicationCommand:
		return &ApplicationCommand{}
	case TypeMessageComponent:
		return &MessageComponent{}
	case TypeAutocomplete:
		return &Autocomplete{}
	case TypeModalSubmit:
		return &ModalSubmit{}
	}
	return nil
}
