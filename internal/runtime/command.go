// Package runtime holds the language-agnostic pieces of running code:
// turning a catalog entry into the shell command executed in a container.
package runtime

import (
	"path"
	"strings"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
)

// DefaultStdinMount is where the stdin directory is mounted inside a run container.
const DefaultStdinMount = "/stdin"

// RenderTemplate substitutes the file name placeholder in a command template.
func RenderTemplate(template, fileName string) string {
	return strings.ReplaceAll(template, execution.FileNamePlaceholder, fileName)
}

// BuildCommand returns the shell command that runs codeFile with stdinFile piped in.
//
// The stdin file is read from stdinMount inside the container. Command-line
// arguments are split on whitespace and quoted individually.
func BuildCommand(spec execution.LanguageSpec, stdinMount, codeFile, stdinFile, args string) string {
	if stdinMount == "" {
		stdinMount = DefaultStdinMount
	}

	var b strings.Builder
	b.WriteString("cat ")
	b.WriteString(ShellQuote(path.Join(stdinMount, stdinFile)))
	b.WriteString(" | ")
	b.WriteString(RenderTemplate(spec.ExecuteCommand, codeFile))

	for _, arg := range strings.Fields(args) {
		b.WriteByte(' ')
		b.WriteString(ShellQuote(arg))
	}
	return b.String()
}

// ShellQuote quotes s for a POSIX shell when it contains anything but safe characters.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, unsafeShellRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./=:,+@%", r)
}
