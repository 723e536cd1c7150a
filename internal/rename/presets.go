package rename

// Preset is a named filename template.
type Preset struct {
	Key      string
	Name     string
	Example  string
	Template string
}

// Presets in display order.
var Presets = []Preset{
	{Key: "original", Name: "Keep Original", Example: "invoice.pdf", Template: "{filename}"},
	{Key: "date_filename", Name: "Date + Filename", Example: "2024-01-15_invoice.pdf", Template: "{date}_{filename}"},
	{Key: "sender_date_filename", Name: "Sender + Date + Filename", Example: "john_2024-01-15_invoice.pdf", Template: "{sender}_{date}_{filename}"},
	{Key: "sender_filename", Name: "Sender + Filename", Example: "john_invoice.pdf", Template: "{sender}_{filename}"},
	{Key: "subject_filename", Name: "Subject + Filename", Example: "Monthly_Report_data.xlsx", Template: "{subject}_{filename}"},
	{Key: "date_sender_subject", Name: "Date + Sender + Subject", Example: "2024-01-15_john_Monthly_Report_invoice.pdf", Template: "{date}_{sender}_{subject}_{filename}"},
}

// LookupPreset returns the preset named key.
func LookupPreset(key string) (Preset, bool) {
	for _, p := range Presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}
