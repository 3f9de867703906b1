package cli

import (
	"errors"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
)

// ErrCanceled is returned when the user dismisses a prompt or dialog.
var ErrCanceled = errors.New("canceled by user")

// Prompter interface for interactive prompts (allows mocking in tests)
type Prompter interface {
	Input(message string, defaultValue string) (string, error)
	Confirm(message string, defaultValue bool) (bool, error)
}

// SurveyPrompter implements Prompter using the survey library
type SurveyPrompter struct{}

func (p *SurveyPrompter) Input(message string, defaultValue string) (string, error) {
	result := ""
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", mapInterrupt(err)
	}
	return result, nil
}

func (p *SurveyPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, mapInterrupt(err)
	}
	return result, nil
}

// DefaultPrompter is the prompter used in production
var DefaultPrompter Prompter = &SurveyPrompter{}

func mapInterrupt(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrCanceled
	}
	return err
}

// PromptForFile asks for the path of a video to upload. An empty answer is
// returned as "" so the upload reports "No file selected".
func PromptForFile(p Prompter) (string, error) {
	path, err := p.Input("Video file to upload:", "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

// videoPatterns are the file dialog filters for --pick.
var videoPatterns = []string{"*.mp4", "*.m4v", "*.mov", "*.webm"}

// PickFile opens the native file dialog. It returns ErrCanceled when the
// dialog is dismissed.
func PickFile() (string, error) {
	selected, err := zenity.SelectFile(
		zenity.Title("Select a teaching session video"),
		zenity.FileFilters{
			{Name: "Videos", Patterns: videoPatterns},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrCanceled
		}
		log.Error().Err(err).Msg("File picker failed")
		return "", err
	}
	return selected, nil
}
