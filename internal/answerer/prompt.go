package answerer

import (
	"fmt"
	"strings"

	"github.com/kalambet/applybot/internal/resume"
)

const classifyTemplate = `You are assisting a bot that applies for jobs automatically. The bot receives questions from application forms and must pick the resume section that best answers each one.

For the question below, respond with exactly one of these options and nothing else:
- Personal information
- Legal Authorization
- Work Preferences
- Education Details
- Experience Details
- Projects
- Availability
- Salary Expectations
- Certifications
- Languages
- Interests
- Cover letter

Guidelines:
1. Personal information: contact details and online profiles (email, phone, GitHub, website).
2. Legal Authorization: work permits, visas, sponsorship, legal right to work.
3. Work Preferences: remote or on-site work, relocation, assessments, background checks.
4. Education Details: degrees, universities, fields of study, coursework.
5. Experience Details: past roles, responsibilities, achievements, technologies used at work.
6. Projects: specific projects, their descriptions and repository links.
7. Availability: notice period, how soon the candidate can start.
8. Salary Expectations: desired salary or compensation.
9. Certifications: professional certificates and licenses.
10. Languages: spoken languages and proficiency.
11. Interests: hobbies and interests outside work.
12. Cover letter: the form asks for a motivation or cover letter.

Question: %s`

// sectionGuidance tailors the answer prompt to each section.
var sectionGuidance = map[string]string{
	resume.PersonalInformation: "Give the requested contact detail or profile link exactly as it appears.",
	resume.LegalAuthorization:  "State the work authorization or visa status plainly.",
	resume.WorkPreferences:     "State the preference directly, for example yes or no for relocation.",
	resume.EducationDetails:    "Name the degree, institution and field that answer the question.",
	resume.ExperienceDetails:   "Use concrete roles, years and technologies. Give a number of years when asked how long.",
	resume.Projects:            "Mention the most relevant project and what was built.",
	resume.Availability:        "Give the notice period or start date.",
	resume.SalaryExpectations:  "Give one figure or range from the expectations, nothing else.",
	resume.Certifications:      "List the relevant certifications.",
	resume.Languages:           "List languages with proficiency levels.",
	resume.Interests:           "Mention one or two interests briefly.",
}

const answerTemplate = `You are a job candidate filling in an application form. Answer the question using only the resume section below.
Write in the first person, in the same language as the question, in at most three sentences. Do not invent facts that are not in the section. %s

Resume section (%s):
%s

Question: %s`

const coverLetterTemplate = `Write a short cover letter for the vacancy below, in the same language as the vacancy description.
Use at most three short paragraphs. Connect two or three concrete points of the resume to the vacancy requirements. Do not add a subject line, placeholders or a signature block.

Resume:
%s

Vacancy:
%s`

// BuildClassifyPrompt asks the model to name the section for question.
func BuildClassifyPrompt(question string) string {
	return fmt.Sprintf(classifyTemplate, question)
}

// BuildAnswerPrompt asks the model to answer question from one section.
func BuildAnswerPrompt(section, sectionText, question string) string {
	return fmt.Sprintf(answerTemplate, sectionGuidance[section], section, sectionText, question)
}

// BuildCoverLetterPrompt asks for a cover letter for the vacancy text.
func BuildCoverLetterPrompt(resumeText, vacancy string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, coverLetterTemplate, resumeText, vacancy)
	return sb.String()
}
