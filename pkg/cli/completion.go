package cli

import (
	"flag"
	"fmt"
	"os"
)

// RunCompletion handles the completion command.
func RunCompletion(args []string) error {
	fs := flag.NewFlagSet("completion", flag.ContinueOnError)

	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `Usage: faultd completion <shell>

Generate shell completion scripts.

Supported shells: bash, zsh, fish

Examples:
  # Bash
  faultd completion bash > /etc/bash_completion.d/faultd

  # Zsh
  faultd completion zsh > "${fpath[1]}/_faultd"

  # Fish
  faultd completion fish > ~/.config/fish/completions/faultd.fish
`)
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf(`shell type is required

Usage: faultd completion <shell>

Supported shells: bash, zsh, fish`)
	}

	switch shell := fs.Arg(0); shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		return fmt.Errorf("unknown shell: %s\n\nSupported shells: bash, zsh, fish", shell)
	}
	return nil
}

const bashCompletion = `# faultd bash completion
_faultd() {
    local cur prev words cword
    _init_completion || return

    local commands="serve status start stop inject pattern interval weights guard stats reset sources events validate completion version"

    if [[ ${cword} -eq 1 ]]; then
        COMPREPLY=($(compgen -W "${commands}" -- "${cur}"))
        return
    fi

    case ${words[1]} in
        serve)
            COMPREPLY=($(compgen -W "--config -c --host --port -p --pattern --interval --log-level --log-format --log-file --no-auth --start --help" -- "${cur}"))
            ;;
        pattern)
            COMPREPLY=($(compgen -W "random burst periodic wave --admin-url --help" -- "${cur}"))
            ;;
        inject)
            COMPREPLY=($(compgen -W "--source -s --operation -o --kind -k --admin-url --json --help" -- "${cur}"))
            ;;
        sources)
            COMPREPLY=($(compgen -W "--probability -P --admin-url --json --help" -- "${cur}"))
            ;;
        stats|status|events)
            COMPREPLY=($(compgen -W "--admin-url --json --help" -- "${cur}"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "${cur}"))
            ;;
        *)
            COMPREPLY=($(compgen -W "--admin-url --help" -- "${cur}"))
            ;;
    esac
}
complete -F _faultd faultd
`

const zshCompletion = `#compdef faultd
# faultd zsh completion

_faultd() {
    local -a commands
    commands=(
        'serve:Start the fault injection server'
        'status:Show server status'
        'start:Start scheduled fault generation'
        'stop:Stop scheduled fault generation'
        'inject:Inject a single fault on demand'
        'pattern:Switch the scheduling pattern'
        'interval:Change the base injection interval'
        'weights:Adjust source and fault kind weights'
        'guard:Install or clear the guard expression'
        'stats:Show aggregate injection statistics'
        'reset:Reset injection statistics'
        'sources:List and tune fault sources'
        'events:Stream injection events'
        'validate:Validate a configuration file'
        'completion:Generate shell completion scripts'
        'version:Show version information'
    )

    if (( CURRENT == 2 )); then
        _describe 'command' commands
        return
    fi

    case ${words[2]} in
        pattern)
            _values 'pattern' random burst periodic wave
            ;;
        completion)
            _values 'shell' bash zsh fish
            ;;
    esac
}

_faultd "$@"
`

const fishCompletion = `# faultd fish completion
set -l commands serve status start stop inject pattern interval weights guard stats reset sources events validate completion version

complete -c faultd -f
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a serve -d "Start the fault injection server"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a status -d "Show server status"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a start -d "Start scheduled fault generation"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a stop -d "Stop scheduled fault generation"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a inject -d "Inject a single fault on demand"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a pattern -d "Switch the scheduling pattern"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a interval -d "Change the base injection interval"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a weights -d "Adjust source and fault kind weights"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a guard -d "Install or clear the guard expression"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a stats -d "Show aggregate injection statistics"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a reset -d "Reset injection statistics"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a sources -d "List and tune fault sources"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a events -d "Stream injection events"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a validate -d "Validate a configuration file"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a completion -d "Generate shell completion scripts"
complete -c faultd -n "not __fish_seen_subcommand_from $commands" -a version -d "Show version information"
complete -c faultd -n "__fish_seen_subcommand_from pattern" -a "random burst periodic wave"
complete -c faultd -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
