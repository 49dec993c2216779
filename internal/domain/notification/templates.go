package notification

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEMPLATES
// ══════════════════════════════════════════════════════════════════════════════

// Brand - подпись и контакты в письмах.
type Brand struct {
	Name    string
	Contact string
	Website string
}

// DefaultBrand возвращает подпись SkillNova.
func DefaultBrand() Brand {
	return Brand{
		Name:    "SkillNova",
		Contact: "contact.skillnova@gmail.com",
		Website: "www.skillnovatech.in",
	}
}

func (b Brand) signature() string {
	lines := []string{"Best regards,", b.Name + " Team"}
	if b.Website != "" {
		lines = append(lines, b.Website)
	}
	if b.Contact != "" {
		lines = append(lines, b.Contact)
	}
	return strings.Join(lines, "\n")
}

// Confirmation - письмо сразу после регистрации.
func (b Brand) Confirmation(to, name, program string) Message {
	body := fmt.Sprintf(`Dear %s,

Congratulations! Your registration for the %s internship at %s has been successfully received.

Our team will review your application and get back to you shortly with the next steps.
Please keep an eye on your inbox for further updates.

If you have any questions in the meantime, feel free to reach out to us at %s.

Looking forward to having you on board!

%s`, name, program, b.Name, b.Contact, b.signature())

	return Message{To: to, Subject: "Internship Registration Successful.", Body: body}
}

// Details - подробная инструкция с PDF-описанием проектов.
// Пустой attachment означает письмо без вложения.
func (b Brand) Details(to, name, program string, weeks int, attachment string) Message {
	body := fmt.Sprintf(`Dear %[1]s,

Your registration for the %[3]s Virtual Internship Program has been confirmed.
We are excited to have you on board.

Internship details:
- Mode: 100%% virtual
- Duration: %[4]d weeks
- Domain: %[2]s
- Work structure: weekly assignments and real-world projects
- Guidance and mentorship from industry professionals
- Certificate of completion when you finish the program

Every week you will receive a new assignment along with its submission link.
Assignments must be completed within the given deadlines.

The attached document describes the projects you will work on. Please review it carefully.
If you have any queries, reach out to us at %[5]s or reply to this email.

%[6]s`, name, program, b.Name, weeks, b.Contact, b.signature())

	msg := Message{To: to, Subject: b.Name + " Virtual Internship - Detailed Instructions", Body: body}
	if attachment != "" {
		msg.Attachments = []Attachment{{Path: attachment, Optional: true}}
	}
	return msg
}

// OfferLetter - письмо с отрисованным offer letter.
func (b Brand) OfferLetter(to, name, program, letterPath string) Message {
	body := fmt.Sprintf(`Dear %s,

Congratulations on your registration for the %s Virtual Internship Program.
Please find attached your offer letter for the internship in %s.

%s`, name, b.Name, program, b.signature())

	return Message{
		To:          to,
		Subject:     b.Name + " Virtual Internship - Offer Letter",
		Body:        body,
		Attachments: []Attachment{{Path: letterPath}},
	}
}

// WeeklyStage - еженедельное задание.
func (b Brand) WeeklyStage(to, name string, stage int, task string) Message {
	body := fmt.Sprintf(`Hi %s,

Here are your tasks for week %d:
%s

%s`, name, stage, task, b.signature())

	return Message{To: to, Subject: "Weekly Internship Update", Body: body}
}

// Completion - письмо с сертификатом о завершении.
func (b Brand) Completion(to, name, program, certificatePath string) Message {
	body := fmt.Sprintf(`Congratulations %s!

You've successfully completed your %s internship. Your certificate is attached.

%s`, name, program, b.signature())

	return Message{
		To:          to,
		Subject:     "Internship Completion Certificate",
		Body:        body,
		Attachments: []Attachment{{Path: certificatePath}},
	}
}
