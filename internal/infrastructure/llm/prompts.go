package llm

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the model as an assistant to the treating clinician.
const SystemPrompt = "You are a clinical assistant supporting a physician. " +
	"Answer using only the patient record provided below. " +
	"If the record does not contain the information, say so plainly. " +
	"Do not invent findings, dates or medications. " +
	"Write in concise clinical English suitable for a consultation note."

// DefaultQuestion is asked when the clinician does not supply one.
const DefaultQuestion = "Summarize this patient's clinical history for a consultation note, " +
	"highlighting active problems, current medications, allergies and recent results."

// Prompt is the input for one narrative
type Prompt struct {
	PatientID   string
	PatientName string
	Context     string
	Question    string
}

// Messages builds the chat messages sent to the model.
func (p Prompt) Messages() []Message {
	name := p.PatientName
	if name == "" {
		name = "unknown name"
	}

	var sys strings.Builder
	sys.WriteString(SystemPrompt)
	fmt.Fprintf(&sys, "\n\nPatient: %s (ID: %s)\n\nPatient record:\n", name, p.PatientID)
	sys.WriteString(strings.TrimSpace(p.Context))

	return []Message{
		{Role: RoleSystem, Content: sys.String()},
		{Role: RoleUser, Content: p.question()},
	}
}

func (p Prompt) question() string {
	if q := strings.TrimSpace(p.Question); q != "" {
		return q
	}
	return DefaultQuestion
}
