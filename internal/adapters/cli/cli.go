// Package cli реализует интерактивную консоль sentimentctl. Те же операции, что и HTTP API
// (login, verify, chats, analyze), но без сервера: ввод через readline, вывод через pr.
// Последний отчёт можно сохранить в JSON-файл. Start/Stop идемпотентны.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"telegram-sentiment/internal/domain/analysis"
	"telegram-sentiment/internal/domain/apperr"
	"telegram-sentiment/internal/domain/auth"
	"telegram-sentiment/internal/domain/remote"
	"telegram-sentiment/internal/infra/logger"
	"telegram-sentiment/internal/infra/pr"
	"telegram-sentiment/internal/infra/storage"
)

// commandDescriptor описывает одну команду: имя и описание для help.
type commandDescriptor struct {
	name        string
	description string
}

// Имена должны совпадать с кейсами в handleCommand().
var commandDescriptors = []commandDescriptor{
	{name: "help", description: "Show available commands with short descriptions"},
	{name: "login", description: "Request a login code (asks api_id, api_hash, phone)"},
	{name: "verify", description: "Complete login with the code from Telegram"},
	{name: "chats", description: "List recent chats of the current phone"},
	{name: "analyze", description: "Find negative messages in a chat"},
	{name: "save", description: "Save the last analysis report to a JSON file"},
	{name: "exit", description: "Stop CLI and terminate"},
}

// Handshake: двухшаговый вход.
type Handshake interface {
	Login(ctx context.Context, apiID int, apiSecret, phone string) (auth.Result, error)
	Verify(ctx context.Context, phone, code, codeHash string, apiID int, apiSecret string) (auth.Result, error)
}

// Analyzer: список чатов и анализ сообщений.
type Analyzer interface {
	Chats(ctx context.Context, phone string) ([]remote.Chat, error)
	Analyze(ctx context.Context, phone string, chatID int64, limit int) (analysis.Report, error)
}

// session: состояние текущего входа между командами.
type session struct {
	apiID     int
	apiSecret string
	phone     string
	codeHash  string

	report   *analysis.Report
	reportOf int64
}

// Service читает команды из readline в отдельной горутине.
type Service struct {
	hs         Handshake
	an         Analyzer
	stopApp    context.CancelFunc
	reportsDir string

	// readLine и readSecret подменяются в тестах.
	readLine   func(prompt string) (string, error)
	readSecret func(prompt string) (string, error)
	now        func() time.Time

	state session

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	onceStart sync.Once
	onceStop  sync.Once
}

// NewService создаёт консоль. stopApp вызывается командой exit и Ctrl-C на пустой строке.
func NewService(hs Handshake, an Analyzer, stopApp context.CancelFunc, reportsDir string) *Service {
	return &Service{
		hs:         hs,
		an:         an,
		stopApp:    stopApp,
		reportsDir: reportsDir,
		readLine:   pr.ReadLine,
		readSecret: pr.ReadSecret,
		now:        time.Now,
	}
}

// Start запускает цикл чтения команд. Повторные вызовы игнорируются.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Go(func() {
			s.run(runCtx)
		})
	})
}

// Stop прерывает readline, отменяет контекст цикла и дожидается его завершения.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if s.stopApp != nil {
			s.stopApp()
		}
		pr.InterruptReadline()
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.Println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	pr.Println("Press '?' or type 'help' for detailed descriptions.")
	installKeyHandlers(s.stopApp)

	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}
		line, err := s.readLine("> ")
		if err != nil {
			logger.Debugf("CLI: deactivated: %v", err)
			if s.stopApp != nil {
				s.stopApp()
			}
			return
		}
		cmd := strings.TrimSpace(line)
		if s.handleCommand(ctx, cmd) {
			logger.Debugf("CLI: command %q requested exit", cmd)
			return
		}
	}
}

// installKeyHandlers: '?' печатает help, Ctrl-C на пустой строке останавливает
// приложение, на непустой очищает строку.
func installKeyHandlers(stop context.CancelFunc) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}

	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key == '?' {
			printCommandHelp()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		if key == 3 { //nolint: mnd // Ctrl-C (ETX)
			if strings.TrimSpace(string(line)) == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			}
			return []rune{}, 0, true
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

func printCommandHelp() {
	for _, text := range buildCommandHelpLines(commandDescriptors) {
		pr.Println(text)
	}
}

// handleCommand выполняет команду. Возвращает true для exit.
func (s *Service) handleCommand(ctx context.Context, cmd string) bool {
	var err error
	switch cmd {
	case "help":
		printCommandHelp()
	case "login":
		err = s.login(ctx)
	case "verify":
		err = s.verify(ctx)
	case "chats":
		err = s.chats(ctx)
	case "analyze":
		err = s.analyze(ctx)
	case "save":
		var path string
		if path, err = s.save(); err == nil {
			pr.Println("Report saved to", path)
		}
	case "exit":
		if s.stopApp != nil {
			s.stopApp()
		}
		return true
	case "":
	default:
		pr.Println("unknown command:", cmd)
	}
	if err != nil {
		pr.ErrPrintln(cmd+" error:", describeError(err))
	}
	return false
}

func (s *Service) login(ctx context.Context) error {
	rawID, err := s.readLine("api_id: ")
	if err != nil {
		return err
	}
	apiID, err := strconv.Atoi(rawID)
	if err != nil {
		return apperr.Validation("api_id must be a number")
	}
	secret, err := s.readSecret("api_hash: ")
	if err != nil {
		return err
	}
	phone, err := s.readLine("phone: ")
	if err != nil {
		return err
	}

	res, err := s.hs.Login(ctx, apiID, secret, phone)
	if err != nil {
		return err
	}
	s.state = session{apiID: apiID, apiSecret: secret, phone: auth.NormalizePhone(phone), codeHash: res.CodeHash}

	if res.Status == auth.StatusAuthorized {
		pr.Println("Already authorized.")
		return nil
	}
	pr.Println("Code sent. Run 'verify' and enter it.")
	return nil
}

func (s *Service) verify(ctx context.Context) error {
	if s.state.codeHash == "" {
		return apperr.Validation("run 'login' first")
	}
	code, err := s.readLine("code: ")
	if err != nil {
		return err
	}
	if _, err := s.hs.Verify(ctx, s.state.phone, code, s.state.codeHash, s.state.apiID, s.state.apiSecret); err != nil {
		return err
	}
	s.state.codeHash = ""
	pr.Println("Login complete.")
	return nil
}

func (s *Service) currentPhone() (string, error) {
	if s.state.phone != "" {
		return s.state.phone, nil
	}
	phone, err := s.readLine("phone: ")
	if err != nil {
		return "", err
	}
	s.state.phone = auth.NormalizePhone(phone)
	return s.state.phone, nil
}

func (s *Service) chats(ctx context.Context) error {
	phone, err := s.currentPhone()
	if err != nil {
		return err
	}
	chats, err := s.an.Chats(ctx, phone)
	if err != nil {
		return err
	}
	for _, c := range chats {
		pr.Printf("%s: '%s' id: %d\n", c.Type, c.Title, c.ID)
	}
	pr.Printf("Total chats: %d\n", len(chats))
	return nil
}

func (s *Service) analyze(ctx context.Context) error {
	phone, err := s.currentPhone()
	if err != nil {
		return err
	}
	rawChat, err := s.readLine("chat id: ")
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(rawChat, 10, 64)
	if err != nil {
		return apperr.Validation("chat id must be a number")
	}
	rawLimit, err := s.readLine(fmt.Sprintf("limit [%d]: ", analysis.DefaultLimit))
	if err != nil {
		return err
	}
	limit := analysis.DefaultLimit
	if rawLimit != "" {
		if limit, err = strconv.Atoi(rawLimit); err != nil {
			return apperr.Validation("limit must be a number")
		}
	}

	rep, err := s.an.Analyze(ctx, phone, chatID, limit)
	if err != nil {
		return err
	}
	s.state.report, s.state.reportOf = &rep, chatID

	pr.Printf("Analyzed: %d, negative: %d\n", rep.AnalyzedCount, rep.NegativeCount)
	for _, m := range rep.NegativeMessages {
		pr.Printf("  #%d [%.4f] %s\n", m.ID, m.Confidence, m.Text)
	}
	if logger.IsDebugEnabled() {
		pr.PP(rep)
	}
	return nil
}

// save пишет последний отчёт в reportsDir атомарно и возвращает путь к файлу.
func (s *Service) save() (string, error) {
	if s.state.report == nil {
		return "", apperr.Validation("nothing to save, run 'analyze' first")
	}
	data, err := json.MarshalIndent(reportFile{
		Phone:     s.state.phone,
		ChatID:    s.state.reportOf,
		CreatedAt: s.now().UTC(),
		Report:    *s.state.report,
	}, "", "  ")
	if err != nil {
		return "", apperr.Internal("encode report", err)
	}
	name := fmt.Sprintf("report_%d_%s.json", s.state.reportOf, s.now().UTC().Format("20060102-150405"))
	path := filepath.Join(s.reportsDir, name)
	if err := storage.AtomicWriteFile(path, data, storage.DefaultFilePerm); err != nil {
		return "", err
	}
	return path, nil
}

type reportFile struct {
	Phone     string          `json:"phone"`
	ChatID    int64           `json:"chat_id"`
	CreatedAt time.Time       `json:"created_at"`
	Report    analysis.Report `json:"report"`
}

// describeError: короткое описание для консоли. Для 429 добавляет время ожидания.
func describeError(err error) string {
	if e, ok := apperr.As(err); ok && e.Kind == apperr.KindThrottled {
		return fmt.Sprintf("%v (retry in %ds)", err, int(math.Ceil(e.RetryAfter.Seconds())))
	}
	return err.Error()
}

func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.name)
	}
	return strings.Join(names, ", ")
}

// buildCommandHelpLines генерирует строки помощи вида "<name> - <description>".
func buildCommandHelpLines(descriptors []commandDescriptor) []string {
	lines := make([]string, 0, len(descriptors)+1)
	lines = append(lines, "Available commands:")
	for _, descriptor := range descriptors {
		lines = append(lines, fmt.Sprintf("  %-8s - %s", descriptor.name, descriptor.description))
	}
	return lines
}
