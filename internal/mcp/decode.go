package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/storebot/internal/errors"
)

// decode maps tool arguments onto T. Any mismatch, such as a string where
// a seller id is expected, is reported as a validation error on "arguments".
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var in T
	raw, err := json.Marshal(req.GetArguments())
	if err == nil {
		err = json.Unmarshal(raw, &in)
	}
	if err != nil {
		return in, errors.NewValidation("arguments", err.Error())
	}
	return in, nil
}
