package cli

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// PromptForDemo asks which demo to run.
func PromptForDemo() (Demo, error) {
	options := make([]string, len(Demos))
	for i, d := range Demos {
		options[i] = d.label()
	}

	var choice string
	prompt := &survey.Select{
		Message: "Select a demo:",
		Options: options,
		Help:    "All demos use the date range and token from .env",
	}
	if err := survey.AskOne(prompt, &choice, survey.WithValidator(survey.Required)); err != nil {
		return Demo{}, err
	}

	for _, d := range Demos {
		if d.label() == choice {
			return d, nil
		}
	}
	return Demo{}, fmt.Errorf("unknown demo %q", choice)
}
