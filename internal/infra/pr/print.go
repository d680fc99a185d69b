// Package pr содержит тонкую обёртку для вывода и ввода в интерактивной консоли sentimentctl.
// Инициализирует readline с отменяемым stdin, переназначает stdout/stderr на его буферы
// и даёт функции печати, построчного ввода и безэхового ввода секретов.
// Мьютекс защищает только смену целевых writer'ов, сами записи здесь не сериализуются.
package pr

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/kr/pretty"
	"golang.org/x/term"
)

// ErrNotInitialized возвращается функциями ввода до вызова Init.
var ErrNotInitialized = errors.New("readline is not initialized")

var (
	// rl: активный инстанс readline. До Init() равен nil.
	rl *readline.Instance
	// out и errOut до Init() указывают на os.Stdout/os.Stderr.
	out    io.Writer = os.Stdout
	errOut io.Writer = os.Stderr
	mu     sync.Mutex

	// cancelableIn можно закрыть, чтобы прервать Readline (вернётся io.EOF).
	cancelableIn interface{ Close() error }
)

// Init настраивает readline и перенаправляет потоки вывода на его stdout/stderr.
func Init() error {
	cs := readline.NewCancelableStdin(os.Stdin)
	newRl, err := readline.NewEx(&readline.Config{Stdin: cs})
	if err != nil {
		_ = cs.Close()
		return err
	}

	mu.Lock()
	rl = newRl
	cancelableIn = cs
	out = rl.Stdout()
	errOut = rl.Stderr()
	mu.Unlock()

	return nil
}

// Close закрывает readline и возвращает вывод на os.Stdout/os.Stderr.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if rl != nil {
		_ = rl.Close()
		rl = nil
	}
	out, errOut = os.Stdout, os.Stderr
}

// InterruptReadline закрывает cancelable stdin: Readline() получает io.EOF и возвращается.
func InterruptReadline() {
	mu.Lock()
	cs := cancelableIn
	mu.Unlock()
	if cs != nil {
		_ = cs.Close()
	}
}

// SetPrompt задаёт строку приглашения. До Init() ничего не делает.
func SetPrompt(prompt string) {
	if r := Rl(); r != nil {
		r.SetPrompt(prompt)
	}
}

// Rl возвращает текущий инстанс readline (nil, если Init() не вызывался).
func Rl() *readline.Instance {
	mu.Lock()
	defer mu.Unlock()
	return rl
}

// ReadLine печатает приглашение и читает одну строку без пробелов по краям.
func ReadLine(prompt string) (string, error) {
	r := Rl()
	if r == nil {
		return "", ErrNotInitialized
	}
	r.SetPrompt(prompt)
	line, err := r.Readline()
	return strings.TrimSpace(line), err
}

// ReadSecret читает значение без эха (api_hash, коды). Если stdin не терминал,
// падает обратно на обычный ReadLine.
func ReadSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ReadLine(prompt)
	}
	Print(prompt)
	secret, err := term.ReadPassword(fd)
	Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// Stdout возвращает текущий writer стандартного вывода.
func Stdout() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Stderr возвращает текущий writer ошибок.
func Stderr() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return errOut
}

func Print(a ...any) {
	fmt.Fprint(Stdout(), a...)
}

func Println(a ...any) {
	fmt.Fprintln(Stdout(), a...)
}

func Printf(format string, a ...any) {
	fmt.Fprintf(Stdout(), format, a...)
}

func ErrPrintln(a ...any) {
	fmt.Fprintln(Stderr(), a...)
}

func ErrPrintf(format string, a ...any) {
	fmt.Fprintf(Stderr(), format, a...)
}

// PP pretty-печатает значение в Stdout.
func PP(v any) {
	fmt.Fprintf(Stdout(), "%# v\n", pretty.Formatter(v))
}

// Pf возвращает pretty-строку значения.
func Pf(v any) string {
	return fmt.Sprintf("%# v\n", pretty.Formatter(v))
}
