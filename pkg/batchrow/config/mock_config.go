package config

type mockConfig struct {
	conf map[string]string
}

// NewMockConfig returns a Config backed by a map. It is meant for tests.
func NewMockConfig(configMap map[string]string) Config {
	return &mockConfig{conf: configMap}
}

func (m *mockConfig) Get(key string) string {
	return m.conf[key]
}

func (m *mockConfig) GetOrDefault(key, defaultValue string) string {
	if v, ok := m.conf[key]; ok && v != "" {
		return v
	}

	return defaultValue
}
