package merger

import "strings"

// UnknownDiseaseCode is reported when no table entry matches the diagnosis.
const UnknownDiseaseCode = "UNKNOWN"

// diseaseCodes maps disease-name keywords to ICD-10 codes for the
// surveillance submission. Matching is case-insensitive substring match
// against the canonical diagnosis field.
var diseaseCodes = []struct {
	keyword string
	code    string
}{
	{"malaria", "B54"},
	{"cholera", "A00"},
	{"measles", "B05"},
	{"dengue", "A90"},
	{"typhoid", "A01.0"},
	{"tuberculosis", "A15"},
	{"ebola", "A98.4"},
	{"covid", "U07.1"},
	{"influenza", "J11"},
	{"meningitis", "G03"},
}

// DiseaseCode resolves a diagnosis string to a surveillance disease code.
// An empty or unmatched diagnosis yields UnknownDiseaseCode.
func DiseaseCode(diagnosis string) string {
	if diagnosis == "" {
		return UnknownDiseaseCode
	}
	lowered := strings.ToLower(diagnosis)
	for _, entry := range diseaseCodes {
		if strings.Contains(lowered, entry.keyword) {
			return entry.code
		}
	}
	return UnknownDiseaseCode
}
