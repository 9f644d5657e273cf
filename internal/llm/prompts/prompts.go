package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/ieltsprep/internal/model"
)

// Files holds the built-in prompt templates.
//
//go:embed templates/*.txt
var Files embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict grades like a strict examiner.
	PromptStrict PromptVariant = "strict"
	// PromptStandard follows the descriptors without a bias.
	PromptStandard PromptVariant = "standard"
	// PromptLenient resolves borderline cases upwards.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

// maxEssayRunes caps the essay text sent to the grader.
const maxEssayRunes = 10000

var (
	loadOnce         sync.Once
	loadErr          error
	gradeTemplates   map[PromptVariant]*template.Template
	extractTemplates map[model.TestModule]*template.Template
	examinerTemplate *template.Template
)

var funcs = template.FuncMap{"join": strings.Join}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// GradeData holds template data for writing grading prompts.
type GradeData struct {
	Task     model.TaskType
	IsTask1  bool
	MinWords int
	Prompt   string
	Essay    string
}

// ExaminerData holds template data for the speaking examiner prompt.
type ExaminerData struct {
	HasMaterial bool
	model.SpeakingModule
}

// Load parses prompt templates from fsys. It uses sync.Once, so only the
// first call's filesystem is used.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		gradeTemplates = make(map[PromptVariant]*template.Template)
		extractTemplates = make(map[model.TestModule]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			tmpl, err := parse(fsys, "templates/grade_"+string(v)+".txt")
			if err != nil {
				loadErr = err
				return
			}
			gradeTemplates[v] = tmpl
		}
		for _, m := range []model.TestModule{model.ModuleReading, model.ModuleWriting, model.ModuleSpeaking} {
			tmpl, err := parse(fsys, "templates/extract_"+strings.ToLower(string(m))+".txt")
			if err != nil {
				loadErr = err
				return
			}
			extractTemplates[m] = tmpl
		}
		examinerTemplate, loadErr = parse(fsys, "templates/examiner.txt")
	})
	return loadErr
}

func parse(fsys fs.FS, name string) (*template.Template, error) {
	content, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.New("failed to read prompt file " + name + ": " + err.Error())
	}
	tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
	if err != nil {
		return nil, errors.New("failed to parse prompt template " + name + ": " + err.Error())
	}
	return tmpl, nil
}

func ready() error {
	if loadErr != nil {
		return fmt.Errorf("templates load failed: %w", loadErr)
	}
	if gradeTemplates == nil {
		return errors.New("templates not initialized: call Load first")
	}
	return nil
}

// BuildGradePrompt builds a writing grading prompt using the specified variant.
func BuildGradePrompt(variant PromptVariant, task model.TaskType, prompt, essay string) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	tmpl, ok := gradeTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	data := GradeData{
		Task:     task,
		IsTask1:  task == model.Task1,
		MinWords: MinWords(task),
		Prompt:   strings.TrimSpace(prompt),
		Essay:    sanitizeAnswer(essay),
	}
	return execute(tmpl, data)
}

// BuildExaminerPrompt builds the speaking examiner system prompt. material
// may be nil for an open practice conversation.
func BuildExaminerPrompt(material *model.SpeakingModule) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	data := ExaminerData{}
	if material != nil {
		data.HasMaterial = true
		data.SpeakingModule = *material
	}
	return execute(examinerTemplate, data)
}

// BuildExtractPrompt builds the document extraction prompt for a module.
func BuildExtractPrompt(module model.TestModule) (string, error) {
	if err := ready(); err != nil {
		return "", err
	}
	tmpl, ok := extractTemplates[module]
	if !ok {
		return "", errors.New("no extraction prompt for module: " + string(module))
	}
	return execute(tmpl, nil)
}

// MinWords is the minimum essay length for a writing task.
func MinWords(task model.TaskType) int {
	if task == model.Task1 {
		return 150
	}
	return 250
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxEssayRunes {
		runes := []rune(answer)
		runes = runes[:maxEssayRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
