package credentials

const legacyAPIKeyField = "apiKey"

// BuildFields merges the definition defaults with the entry overrides. A generic
// `apiKey` override still populates the definition's primary field unless that field
// was overridden explicitly.
func BuildFields(def Definition, overrides map[string]string) map[string]string {
	fields := make(map[string]string, len(def.Fields)+len(overrides))
	for name, value := range def.Fields {
		fields[name] = value
	}
	for name, value := range overrides {
		if name == legacyAPIKeyField {
			continue
		}
		fields[name] = value
	}

	if apiKey, ok := overrides[legacyAPIKeyField]; ok {
		if _, known := def.Fields[legacyAPIKeyField]; known {
			fields[legacyAPIKeyField] = apiKey
		} else if _, explicit := overrides[def.PrimaryField]; !explicit && def.PrimaryField != "" {
			fields[def.PrimaryField] = apiKey
		}
	}
	return fields
}
