package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BashCompletion is the bash completion script for lotteryd.
const BashCompletion = `#!/bin/bash
# Bash completion for lotteryd

_lotteryd_completion() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    local commands="serve migrate import result sync roll completion version help"
    local global_flags="-config"

    case "${prev}" in
        migrate)
            COMPREPLY=( $(compgen -W "up down status" -- ${cur}) )
            return 0
            ;;
        import)
            COMPREPLY=( $(compgen -W "-lottery -draw-date -layout -file ${global_flags}" -- ${cur}) )
            return 0
            ;;
        result)
            COMPREPLY=( $(compgen -W "-lottery -draw-date -number -series ${global_flags}" -- ${cur}) )
            return 0
            ;;
        -layout)
            COMPREPLY=( $(compgen -W "standard legacy" -- ${cur}) )
            return 0
            ;;
        -config|-file)
            COMPREPLY=( $(compgen -f -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            return 0
            ;;
    esac

    COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
    return 0
}

complete -F _lotteryd_completion lotteryd
`

// ZshCompletion is the zsh completion script for lotteryd.
const ZshCompletion = `#compdef lotteryd

_lotteryd() {
    local -a commands
    commands=(
        'serve:Run the HTTP API and scheduler'
        'migrate:Apply or roll back database migrations'
        'import:Upload the combination list of a draw'
        'result:Deliver a draw result and settle its bets'
        'sync:Pull results from the feed once'
        'roll:Advance the next draw date of every lottery'
        'completion:Generate shell completion script'
        'version:Show version information'
    )

    _arguments -C \
        '-config[Configuration file path]:file:_files' \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                migrate)
                    _values 'direction' up down status
                    ;;
                import)
                    _arguments '-lottery[Lottery code]' '-draw-date[Draw date]' \
                        '-layout[File layout]:layout:(standard legacy)' '-file[CSV file]:file:_files'
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_lotteryd "$@"
`

// FishCompletion is the fish completion script for lotteryd.
const FishCompletion = `# Fish completion for lotteryd

complete -c lotteryd -f -n "__fish_use_subcommand" -a "serve" -d "Run the HTTP API and scheduler"
complete -c lotteryd -f -n "__fish_use_subcommand" -a "migrate" -d "Apply or roll back database migrations"
complete -c lotteryd -f -n "__fish_use_subcommand" -a "import" -d "Upload the combination list of a draw"
complete -c lotteryd -f -n "__fish_use_subcommand" -a "result" -d "Deliver a draw result and settle its bets"
complete -c lotteryd -f -n "__fish_use_subcommand" -a "sync" -d "Pull results from the feed once"
complete -c lotteryd -f -n "__fish_use_subcommand" -a "roll" -d "Advance the next draw date of every lottery"
complete -c lotteryd -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion script"
complete -c lotteryd -f -n "__fish_use_subcommand" -a "version" -d "Show version information"

complete -c lotteryd -f -n "__fish_seen_subcommand_from migrate" -a "up down status"
complete -c lotteryd -f -n "__fish_seen_subcommand_from import" -l layout -x -a "standard legacy"
complete -c lotteryd -f -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
complete -c lotteryd -l config -r -d "Configuration file path"
`

func completionScript(shell string) (string, error) {
	switch shell {
	case "bash":
		return BashCompletion, nil
	case "zsh":
		return ZshCompletion, nil
	case "fish":
		return FishCompletion, nil
	default:
		return "", fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}
}

// GenerateCompletion writes the completion script for shell to w.
func GenerateCompletion(w io.Writer, shell string) error {
	script, err := completionScript(shell)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, script)
	return err
}

// InstallCompletion writes the completion script under home and returns its
// path.
func InstallCompletion(home, shell string) (string, error) {
	script, err := completionScript(shell)
	if err != nil {
		return "", err
	}

	var installPath string
	switch shell {
	case "bash":
		installPath = filepath.Join(home, ".bash_completion.d", "lotteryd")
	case "zsh":
		installPath = filepath.Join(home, ".zsh", "completion", "_lotteryd")
	case "fish":
		installPath = filepath.Join(home, ".config", "fish", "completions", "lotteryd.fish")
	}
	if err := os.MkdirAll(filepath.Dir(installPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create completion directory: %w", err)
	}
	if err := os.WriteFile(installPath, []byte(script), 0o644); err != nil {
		return "", fmt.Errorf("failed to write completion script: %w", err)
	}
	return installPath, nil
}
