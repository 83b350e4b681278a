package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/xid"
)

// Seeds a queue with synthetic messages so sqs-reader runs have something to
// collect. A configurable fraction of payloads is re-sent verbatim, giving
// transfer and drain runs duplicate bodies to look at.

var (
	queueURL         string
	region           string
	numberOfMessages int
	concurrency      int
	duplicateRatio   float64
	sendTimeout      time.Duration
	pattern          SendPattern
)

type SendPattern string

const (
	PatternSteady SendPattern = "steady"
	PatternBurst  SendPattern = "burst"
)

func init() {
	queueURL = getEnv("SQS_QUEUE_URL", "")
	if queueURL == "" {
		fmt.Fprintf(os.Stderr, "ERROR: SQS_QUEUE_URL environment variable is required\n")
		os.Exit(1)
	}

	region = getEnv("AWS_REGION", "us-east-1")
	numberOfMessages = getEnvInt("LOAD_TEST_MESSAGES", 500)
	concurrency = getEnvInt("LOAD_TEST_CONCURRENCY", 8)
	duplicateRatio = getEnvFloat("LOAD_TEST_DUPLICATE_RATIO", 0.1)
	sendTimeout = time.Duration(getEnvInt("LOAD_TEST_TIMEOUT_SECONDS", 30)) * time.Second
	pattern = SendPattern(getEnv("LOAD_TEST_PATTERN", "steady"))
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

type Payload struct {
	ID      string `json:"id"`
	Seq     int    `json:"seq"`
	Content string `json:"content"`
	SentAt  string `json:"sent_at"`
}

type Result struct {
	Success   bool
	Duplicate bool
	Duration  time.Duration
	Index     int
	Error     string
}

type logEntry struct {
	message string
	success bool
}

type tickMsg time.Time
type resultMsg Result
type completeMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("111"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2).
			MarginBottom(1)
)

type model struct {
	spinner        spinner.Model
	progress       progress.Model
	totalMessages  int
	sentMessages   int
	successfulMsgs int
	failedMsgs     int
	duplicatesSent int
	recentLogs     []logEntry
	errors         []string
	latencies      []time.Duration
	minLatency     time.Duration
	maxLatency     time.Duration
	avgLatency     time.Duration
	throughput     float64
	startTime      time.Time
	isComplete     bool
	width          int
}

func initialModel() model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		spinner:       s,
		progress:      progress.New(progress.WithDefaultGradient()),
		totalMessages: numberOfMessages,
		recentLogs:    make([]logEntry, 0, 10),
		errors:        make([]string, 0),
		latencies:     make([]time.Duration, 0, numberOfMessages),
		startTime:     time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tickMsg:
		if !m.isComplete {
			return m, tickCmd()
		}
		return m, nil

	case resultMsg:
		m.sentMessages++
		m.latencies = append(m.latencies, msg.Duration)

		if len(m.latencies) == 1 {
			m.minLatency = msg.Duration
			m.maxLatency = msg.Duration
		} else {
			if msg.Duration < m.minLatency {
				m.minLatency = msg.Duration
			}
			if msg.Duration > m.maxLatency {
				m.maxLatency = msg.Duration
			}
		}

		var total time.Duration
		for _, d := range m.latencies {
			total += d
		}
		m.avgLatency = total / time.Duration(len(m.latencies))

		elapsed := time.Since(m.startTime).Seconds()
		if elapsed > 0 {
			m.throughput = float64(m.successfulMsgs) / elapsed
		}

		if msg.Success {
			m.successfulMsgs++
			if msg.Duplicate {
				m.duplicatesSent++
			}
			m.recentLogs = append([]logEntry{{
				message: fmt.Sprintf("Message %d sent (%v)", msg.Index, msg.Duration),
				success: true,
			}}, m.recentLogs...)
		} else {
			m.failedMsgs++
			m.recentLogs = append([]logEntry{{
				message: fmt.Sprintf("Message %d failed: %s", msg.Index, msg.Error),
				success: false,
			}}, m.recentLogs...)
			m.errors = append([]string{msg.Error}, m.errors...)
			if len(m.errors) > 5 {
				m.errors = m.errors[:5]
			}
		}

		if len(m.recentLogs) > 10 {
			m.recentLogs = m.recentLogs[:10]
		}
		return m, nil

	case completeMsg:
		m.isComplete = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("SQS Reader Load Seeder") + "\n")

	progressPercent := float64(m.sentMessages) / float64(m.totalMessages)
	progressText := fmt.Sprintf("Progress: %d/%d messages (%.1f%%)",
		m.sentMessages, m.totalMessages, progressPercent*100)

	if !m.isComplete {
		progressText = m.spinner.View() + " " + progressText
	} else {
		progressText = "✓ " + progressText
	}

	b.WriteString(progressText + "\n")
	b.WriteString(m.progress.ViewAs(progressPercent) + "\n\n")

	stats := lipgloss.JoinVertical(lipgloss.Left,
		labelStyle.Render("Succeeded: ")+valueStyle.Render(strconv.Itoa(m.successfulMsgs)),
		labelStyle.Render("Failed:    ")+valueStyle.Render(strconv.Itoa(m.failedMsgs)),
		labelStyle.Render("Dup bodies:")+valueStyle.Render(strconv.Itoa(m.duplicatesSent)),
		labelStyle.Render("Latency:   ")+valueStyle.Render(fmt.Sprintf("min %v / avg %v / max %v", m.minLatency, m.avgLatency, m.maxLatency)),
		labelStyle.Render("Throughput:")+valueStyle.Render(fmt.Sprintf("%.1f msg/s", m.throughput)),
		labelStyle.Render("Pattern:   ")+valueStyle.Render(string(pattern)),
	)
	b.WriteString(boxStyle.Render(stats) + "\n")

	if len(m.recentLogs) > 0 {
		var lines []string
		for _, entry := range m.recentLogs {
			if entry.success {
				lines = append(lines, successStyle.Render("✓ ")+entry.message)
			} else {
				lines = append(lines, errorStyle.Render("✗ ")+entry.message)
			}
		}
		b.WriteString(boxStyle.Render(strings.Join(lines, "\n")) + "\n")
	}

	if len(m.errors) > 0 {
		b.WriteString(boxStyle.Render(errorStyle.Render(strings.Join(m.errors, "\n"))) + "\n")
	}

	if m.isComplete {
		b.WriteString(successStyle.Render("\n✓ Seeding complete! Press 'q' to quit"))
	} else {
		b.WriteString(labelStyle.Render("\nPress 'q' to quit"))
	}

	return b.String()
}

func main() {
	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to load AWS config: %v\n", err)
		os.Exit(1)
	}
	client := sqs.NewFromConfig(awsCfg)

	p := tea.NewProgram(initialModel())

	go sendMessages(client, p)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func sendMessages(client *sqs.Client, p *tea.Program) {
	indices := make(chan int)
	var wg sync.WaitGroup

	var mu sync.Mutex
	var lastBody string

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				body, duplicate := nextBody(i, &mu, &lastBody)

				start := time.Now()
				ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
				_, err := client.SendMessage(ctx, &sqs.SendMessageInput{
					QueueUrl:    aws.String(queueURL),
					MessageBody: aws.String(body),
				})
				cancel()

				result := Result{
					Success:   err == nil,
					Duplicate: duplicate,
					Duration:  time.Since(start),
					Index:     i,
				}
				if err != nil {
					result.Error = err.Error()
				}
				p.Send(resultMsg(result))
			}
		}()
	}

	for i := 0; i < numberOfMessages; i++ {
		indices <- i
		if pattern == PatternBurst && i > 0 && i%50 == 0 {
			time.Sleep(2 * time.Second)
		}
	}
	close(indices)
	wg.Wait()

	p.Send(completeMsg{})
}

// nextBody returns a fresh payload, or re-sends the previous one when the
// duplicate ratio says so.
func nextBody(seq int, mu *sync.Mutex, lastBody *string) (string, bool) {
	mu.Lock()
	defer mu.Unlock()

	if *lastBody != "" && rand.Float64() < duplicateRatio {
		return *lastBody, true
	}

	payload := Payload{
		ID:      xid.New().String(),
		Seq:     seq,
		Content: fmt.Sprintf("synthetic payload %d", seq),
		SentAt:  time.Now().Format(time.RFC3339Nano),
	}
	encoded, _ := json.Marshal(payload)
	*lastBody = string(encoded)
	return *lastBody, false
}
