package workflow

import "github.com/montroyal-labs/frontdesk/src/session"

// Prompt keys for caller-facing lines. Texts are bilingual; the machine
// picks the variant matching the session's current response language.
type promptKey string

const (
	promptClarifyRole   promptKey = "clarify_role"
	promptRecovery      promptKey = "recovery"
	promptVoicemail     promptKey = "voicemail"
	promptOfferSchedule promptKey = "offer_schedule"
	promptCloseBooked   promptKey = "close_booked"
	promptCloseLead     promptKey = "close_lead"
	promptCloseDefault  promptKey = "close_default"
)

var promptsEN = map[promptKey]string{
	promptClarifyRole:   "Just so I point you the right way: are you looking to buy, sell, or rent today?",
	promptRecovery:      "I'm sorry, I didn't catch that. Could you say it again?",
	promptVoicemail:     "Mark is currently with clients. May I take a detailed message and have him call you back within two hours?",
	promptOfferSchedule: "Would you like to set up a consultation with Mark?",
	promptCloseBooked:   "You're all set. Mark looks forward to meeting you. Have a great day!",
	promptCloseLead:     "Thanks for calling. Mark will follow up with you shortly. Have a great day!",
	promptCloseDefault:  "Thank you for calling Mark Esposito's office. Have a great day!",
}

var promptsFR = map[promptKey]string{
	promptClarifyRole:   "Pour bien vous diriger : cherchez-vous à acheter, vendre ou louer aujourd'hui?",
	promptRecovery:      "Désolé, je n'ai pas bien compris. Pouvez-vous répéter?",
	promptVoicemail:     "Mark est présentement avec des clients. Puis-je prendre un message détaillé pour qu'il vous rappelle d'ici deux heures?",
	promptOfferSchedule: "Souhaitez-vous planifier une consultation avec Mark?",
	promptCloseBooked:   "C'est confirmé. Mark a hâte de vous rencontrer. Bonne journée!",
	promptCloseLead:     "Merci de votre appel. Mark fera un suivi avec vous sous peu. Bonne journée!",
	promptCloseDefault:  "Merci d'avoir appelé le bureau de Mark Esposito. Bonne journée!",
}

// fieldQuestionsEN/FR are the qualification questions per lead field
var fieldQuestionsEN = map[session.FieldName]string{
	session.FieldRole:       "Are you looking to buy, sell, rent, or something else today?",
	session.FieldArea:       "Which area are you interested in? Westmount, downtown, the Plateau?",
	session.FieldBudget:     "What budget range are you working with?",
	session.FieldTimeline:   "And what's your timeline?",
	session.FieldAddress:    "What's the address of the property?",
	session.FieldCallerName: "May I have your name?",
	session.FieldPhone:      "What's the best number to reach you at?",
	session.FieldNotes:      "How can Mark help you? I'll pass along the details.",
}

var fieldQuestionsFR = map[session.FieldName]string{
	session.FieldRole:       "Cherchez-vous à acheter, vendre, louer, ou autre chose aujourd'hui?",
	session.FieldArea:       "Quel secteur vous intéresse? Westmount, le centre-ville, le Plateau?",
	session.FieldBudget:     "Quel est votre budget?",
	session.FieldTimeline:   "Et quel est votre échéancier?",
	session.FieldAddress:    "Quelle est l'adresse de la propriété?",
	session.FieldCallerName: "Puis-je avoir votre nom?",
	session.FieldPhone:      "Quel est le meilleur numéro pour vous joindre?",
	session.FieldNotes:      "Comment Mark peut-il vous aider? Je lui transmettrai les détails.",
}

func (m *Machine) prompt(key promptKey) string {
	if m.respond == session.LanguageFrench {
		return promptsFR[key]
	}
	return promptsEN[key]
}

func (m *Machine) fieldQuestion(field session.FieldName) string {
	if m.respond == session.LanguageFrench {
		return fieldQuestionsFR[field]
	}
	return fieldQuestionsEN[field]
}

// Render returns the caller-facing line for a speakable action, or "" for
// pure side-effect actions
func (m *Machine) Render(a Action) string {
	switch act := a.(type) {
	case SayAction:
		return act.Text
	case AskFieldAction:
		return m.fieldQuestion(act.Field)
	case ConfirmFieldAction:
		if m.respond == session.LanguageFrench {
			return "Donc " + act.Value + ", c'est bien ça?"
		}
		return "So that's " + act.Value + ", correct?"
	case OfferScheduleAction:
		return m.prompt(promptOfferSchedule)
	case CloseAction:
		return act.Remark
	default:
		return ""
	}
}
