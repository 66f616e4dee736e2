package browser

import (
	"encoding/json"
	"fmt"

	"github.com/playwright-community/playwright-go"
)

// ParseStorageState разбирает сохранённый JSON в формат, который принимает NewContext.
func ParseStorageState(raw string) (*playwright.OptionalStorageState, error) {
	var state playwright.OptionalStorageState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("невалидный storage state: %w", err)
	}
	return &state, nil
}

func MarshalStorageState(state *playwright.StorageState) (string, error) {
	if state == nil {
		return "", fmt.Errorf("пустой storage state")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("сериализация storage state: %w", err)
	}
	return string(data), nil
}
