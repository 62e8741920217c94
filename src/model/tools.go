package model

// toolSpec is a provider-neutral tool declaration, rendered into each
// provider's wire schema
type toolSpec struct {
	Name        string
	Description string
	Properties  map[string]toolProp
	Required    []string
}

type toolProp struct {
	Type        string
	Description string
	Enum        []string
}

// Tool names as the workflow mapper sees them
const (
	ToolCheckAvailability = "check_calendar_availability"
	ToolBookAppointment   = "book_appointment"
	ToolLogLead           = "log_lead"
	ToolWarmTransfer      = "warm_transfer"
	ToolLogVoicemail      = "log_voicemail"
)

func toolSpecs() []toolSpec {
	return []toolSpec{
		{
			Name:        ToolCheckAvailability,
			Description: "Check which consultation slots are open on a date before offering times to the caller.",
			Properties: map[string]toolProp{
				"date": {Type: "string", Description: "Requested date, YYYY-MM-DD"},
			},
			Required: []string{"date"},
		},
		{
			Name:        ToolBookAppointment,
			Description: "Book a consultation once the caller has agreed to a specific date and time.",
			Properties: map[string]toolProp{
				"date":     {Type: "string", Description: "Appointment date, YYYY-MM-DD"},
				"time":     {Type: "string", Description: "Appointment time, e.g. 2:00 PM"},
				"purpose":  {Type: "string", Description: "Short purpose, e.g. Buyer consultation"},
				"location": {Type: "string", Description: "Office, phone, or a property address"},
			},
			Required: []string{"date", "time"},
		},
		{
			Name:        ToolLogLead,
			Description: "Record or update the caller's qualification details. Call it whenever the caller states or corrects a detail.",
			Properties: map[string]toolProp{
				"intent":           {Type: "string", Description: "What the caller wants", Enum: []string{"buyer", "seller", "renter", "investor", "other"}},
				"name":             {Type: "string", Description: "Caller's name"},
				"phone":            {Type: "string", Description: "Best callback number"},
				"email":            {Type: "string", Description: "Email address if offered"},
				"area_interest":    {Type: "string", Description: "Neighbourhood or area of interest"},
				"budget":           {Type: "string", Description: "Budget or price range"},
				"timeline":         {Type: "string", Description: "When they want to move"},
				"property_address": {Type: "string", Description: "Address of the property to sell"},
				"notes":            {Type: "string", Description: "Anything else worth passing along"},
				"corrected":        {Type: "boolean", Description: "True when this replaces a value the caller just corrected"},
			},
		},
		{
			Name:        ToolWarmTransfer,
			Description: "Transfer the caller to a human immediately. Use for explicit requests, urgent matters, or frustration.",
			Properties: map[string]toolProp{
				"reason":  {Type: "string", Description: "Why the caller needs a human"},
				"urgency": {Type: "string", Description: "How urgent", Enum: []string{"normal", "high"}},
			},
			Required: []string{"reason"},
		},
		{
			Name:        ToolLogVoicemail,
			Description: "Save the caller's message for callback when no human is available.",
			Properties: map[string]toolProp{
				"message": {Type: "string", Description: "The caller's message, verbatim as possible"},
				"urgency": {Type: "string", Description: "How urgent", Enum: []string{"normal", "high"}},
			},
			Required: []string{"message"},
		},
	}
}
