package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	c := newClient(getAPIURL(), credentialsFile())
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "auth":
		err = handleAuth(ctx, c, args)
	case "jobs":
		err = handleJobs(ctx, c, args)
	case "bids":
		err = handleBids(ctx, c, args)
	case "notifications":
		err = handleNotifications(ctx, c, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func sub(args []string, usage string) (string, []string, error) {
	if len(args) < 1 {
		return "", nil, errors.New("usage: fhctl " + usage)
	}
	return args[0], args[1:], nil
}

func handleAuth(ctx context.Context, c *client, args []string) error {
	cmd, rest, err := sub(args, "auth <register|login|logout|status|password>")
	if err != nil {
		return err
	}
	switch cmd {
	case "register":
		return registerUser(ctx, c, rest)
	case "login":
		return loginUser(ctx, c, rest)
	case "logout":
		return logoutUser(ctx, c)
	case "status":
		return authStatus(ctx, c)
	case "password":
		return changePassword(ctx, c)
	default:
		return fmt.Errorf("unknown auth command: %s", cmd)
	}
}

func handleJobs(ctx context.Context, c *client, args []string) error {
	cmd, rest, err := sub(args, "jobs <list|mine|create|publish|cancel>")
	if err != nil {
		return err
	}
	switch cmd {
	case "list":
		return listJobs(ctx, c, "/jobs")
	case "mine":
		return listJobs(ctx, c, "/jobs/mine")
	case "create":
		return createJob(ctx, c, rest)
	case "publish":
		return setJobFlag(ctx, c, rest, "isPublic")
	case "cancel":
		return setJobFlag(ctx, c, rest, "isCancelled")
	default:
		return fmt.Errorf("unknown jobs command: %s", cmd)
	}
}

func handleBids(ctx context.Context, c *client, args []string) error {
	cmd, rest, err := sub(args, "bids <submit|mine|job|employer|accept|decline|cancel>")
	if err != nil {
		return err
	}
	switch cmd {
	case "submit":
		return submitBid(ctx, c, rest)
	case "mine":
		return listBids(ctx, c, "/bids/mine")
	case "job":
		if len(rest) < 1 {
			return errors.New("usage: fhctl bids job <job-id>")
		}
		return listBids(ctx, c, "/jobs/"+rest[0]+"/bids")
	case "employer":
		return employerOverview(ctx, c)
	case "accept", "decline", "cancel":
		if len(rest) < 1 {
			return fmt.Errorf("usage: fhctl bids %s <bid-id>", cmd)
		}
		var out struct {
			Bid      bidRow   `json:"bid"`
			Declined []string `json:"declinedBids"`
		}
		if err := c.do(ctx, http.MethodPost, "/bids/"+rest[0]+"/"+cmd, nil, &out); err != nil {
			return err
		}
		fmt.Printf("✓ Bid %s is now %s\n", out.Bid.BidID, out.Bid.Status)
		if len(out.Declined) > 0 {
			fmt.Printf("  declined: %s\n", strings.Join(out.Declined, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unknown bids command: %s", cmd)
	}
}

func handleNotifications(ctx context.Context, c *client, args []string) error {
	cmd, rest, err := sub(args, "notifications <list|read|read-all|clear>")
	if err != nil {
		return err
	}
	switch cmd {
	case "list":
		return listNotifications(ctx, c)
	case "read":
		if len(rest) < 1 {
			return errors.New("usage: fhctl notifications read <id>")
		}
		if err := c.do(ctx, http.MethodPost, "/notifications/"+rest[0]+"/read", nil, nil); err != nil {
			return err
		}
		fmt.Println("✓ Marked as read")
		return nil
	case "read-all":
		var out map[string]int64
		if err := c.do(ctx, http.MethodPost, "/notifications/read-all", nil, &out); err != nil {
			return err
		}
		fmt.Printf("✓ %d marked as read\n", out["updated"])
		return nil
	case "clear":
		var out map[string]int64
		if err := c.do(ctx, http.MethodDelete, "/notifications", nil, &out); err != nil {
			return err
		}
		fmt.Printf("✓ %d deleted\n", out["deleted"])
		return nil
	default:
		return fmt.Errorf("unknown notifications command: %s", cmd)
	}
}

// Auth commands
func registerUser(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	email := fs.String("email", "", "user email")
	name := fs.String("name", "", "display name")
	userType := fs.String("type", "writer", "writer or employer")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *name == "" {
		fs.PrintDefaults()
		return errors.New("email and name are required")
	}
	pw, err := passwordOr(*password, "Password: ")
	if err != nil {
		return err
	}

	var out sessionBody
	err = c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":    *email,
		"name":     *name,
		"userType": *userType,
		"password": pw,
	}, &out)
	if err != nil {
		return err
	}
	if err := c.adopt(&out); err != nil {
		return err
	}
	fmt.Printf("✓ Registered %s as %s\n", *email, out.Session.UserType)
	return nil
}

func loginUser(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "user email")
	userType := fs.String("type", "writer", "writer or employer")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.PrintDefaults()
		return errors.New("email is required")
	}
	pw, err := passwordOr(*password, "Password: ")
	if err != nil {
		return err
	}

	var out sessionBody
	err = c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    *email,
		"userType": *userType,
		"password": pw,
	}, &out)
	if err != nil {
		return err
	}
	if err := c.adopt(&out); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as %s\n", *email)
	return nil
}

func logoutUser(ctx context.Context, c *client) error {
	if c.creds != nil {
		if err := c.send(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "server logout failed: %v\n", err)
		}
	}
	if err := c.forget(); err != nil {
		return err
	}
	fmt.Println("✓ Logged out")
	return nil
}

func authStatus(ctx context.Context, c *client) error {
	if c.creds == nil {
		fmt.Println("Not logged in")
		return nil
	}
	var out struct {
		UserID    string    `json:"userId"`
		UserType  string    `json:"userType"`
		Name      string    `json:"name"`
		Platform  string    `json:"platform"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/status", nil, &out); err != nil {
		return err
	}
	fmt.Printf("✓ %s (%s, %s) on %s, session expires %s\n",
		out.Name, out.UserID, out.UserType, out.Platform, out.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func changePassword(ctx context.Context, c *client) error {
	oldPw, err := passwordOr("", "Current password: ")
	if err != nil {
		return err
	}
	newPw, err := passwordOr("", "New password: ")
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPost, "/auth/password/change", map[string]string{
		"oldPassword": oldPw,
		"newPassword": newPw,
	}, nil); err != nil {
		return err
	}
	fmt.Println("✓ Password changed")
	return nil
}

// passwordOr returns given, or reads a password from the terminal without echo.
func passwordOr(given, prompt string) (string, error) {
	if given != "" {
		return given, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password required: pass -password or run in a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// Job commands
type jobRow struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Budget       string    `json:"budget"`
	Bids         int64     `json:"bids"`
	IsPublic     bool      `json:"isPublic"`
	IsInProgress bool      `json:"isInProgress"`
	IsCancelled  bool      `json:"isCancelled"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (j jobRow) state() string {
	switch {
	case j.IsCancelled:
		return "cancelled"
	case j.IsInProgress:
		return "in progress"
	case j.IsPublic:
		return "open"
	default:
		return "draft"
	}
}

func listJobs(ctx context.Context, c *client, path string) error {
	var jobs []jobRow
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tBUDGET\tBIDS\tSTATE\tCREATED")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", j.ID, j.Title, j.Budget, j.Bids, j.state(), j.CreatedAt.Format(time.DateOnly))
	}
	return w.Flush()
}

func createJob(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	title := fs.String("title", "", "job title")
	description := fs.String("description", "", "job description")
	budget := fs.String("budget", "0", "budget, e.g. 150.00")
	category := fs.String("category", "", "category")
	publish := fs.Bool("publish", false, "make the job public right away")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *title == "" || *description == "" {
		fs.PrintDefaults()
		return errors.New("title and description are required")
	}

	var job jobRow
	if err := c.do(ctx, http.MethodPost, "/jobs", map[string]any{
		"title":       *title,
		"description": *description,
		"budget":      *budget,
		"category":    *category,
	}, &job); err != nil {
		return err
	}
	fmt.Printf("✓ Created job %s\n", job.ID)
	if *publish {
		return setJobFlag(ctx, c, []string{job.ID}, "isPublic")
	}
	return nil
}

func setJobFlag(ctx context.Context, c *client, args []string, flagName string) error {
	if len(args) < 1 {
		return errors.New("job id is required")
	}
	var job jobRow
	if err := c.do(ctx, http.MethodPatch, "/jobs/"+args[0]+"/status", map[string]bool{flagName: true}, &job); err != nil {
		return err
	}
	fmt.Printf("✓ Job %s is now %s\n", job.ID, job.state())
	return nil
}

// Bid commands
type bidRow struct {
	BidID        string    `json:"bidId"`
	JobID        string    `json:"jobId"`
	JobTitle     string    `json:"jobTitle"`
	BidAmount    string    `json:"bidAmount"`
	DeliveryTime string    `json:"deliveryTime"`
	Status       string    `json:"status"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

func submitBid(ctx context.Context, c *client, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	jobID := fs.String("job", "", "job id")
	amount := fs.String("amount", "", "bid amount")
	days := fs.Int("days", 0, "delivery time in days")
	notes := fs.String("notes", "", "notes for the employer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" || *amount == "" || *days <= 0 {
		fs.PrintDefaults()
		return errors.New("job, amount and days are required")
	}

	var out struct {
		Bid     bidRow `json:"bid"`
		Updated bool   `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, "/jobs/"+*jobID+"/bids", map[string]any{
		"bidAmount":    *amount,
		"deliveryDays": *days,
		"notes":        *notes,
	}, &out); err != nil {
		return err
	}
	verb := "Submitted"
	if out.Updated {
		verb = "Updated"
	}
	fmt.Printf("✓ %s bid %s: %s in %s\n", verb, out.Bid.BidID, out.Bid.BidAmount, out.Bid.DeliveryTime)
	return nil
}

func listBids(ctx context.Context, c *client, path string) error {
	var bids []bidRow
	if err := c.do(ctx, http.MethodGet, path, nil, &bids); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BID\tJOB\tAMOUNT\tDELIVERY\tSTATUS\tSUBMITTED")
	for _, b := range bids {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", b.BidID, b.JobTitle, b.BidAmount, b.DeliveryTime, b.Status, b.SubmittedAt.Format(time.DateOnly))
	}
	return w.Flush()
}

func employerOverview(ctx context.Context, c *client) error {
	var groups []struct {
		JobID    string `json:"jobId"`
		Title    string `json:"title"`
		Budget   string `json:"budget"`
		BidCount int64  `json:"bidCount"`
		Bids     []struct {
			BidID        string  `json:"bidId"`
			WriterName   string  `json:"writerName"`
			WriterRating float64 `json:"writerRating"`
			BidAmount    string  `json:"bidAmount"`
			DeliveryTime string  `json:"deliveryTime"`
			Status       string  `json:"status"`
		} `json:"bids"`
	}
	if err := c.do(ctx, http.MethodGet, "/employer/bids", nil, &groups); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, g := range groups {
		fmt.Fprintf(w, "%s\t%s\tbudget %s\t%d bids\n", g.JobID, g.Title, g.Budget, g.BidCount)
		for _, b := range g.Bids {
			fmt.Fprintf(w, "  %s\t%s (%.1f)\t%s\t%s\t%s\n", b.BidID, b.WriterName, b.WriterRating, b.BidAmount, b.DeliveryTime, b.Status)
		}
	}
	return w.Flush()
}

func listNotifications(ctx context.Context, c *client) error {
	var items []struct {
		ID        string    `json:"id"`
		Type      string    `json:"type"`
		Title     string    `json:"title"`
		IsRead    bool      `json:"isRead"`
		CreatedAt time.Time `json:"createdAt"`
	}
	if err := c.do(ctx, http.MethodGet, "/notifications", nil, &items); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tTITLE\tREAD\tCREATED")
	for _, n := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", n.ID, n.Type, n.Title, n.IsRead, n.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

// Helper functions
func getAPIURL() string {
	if url := os.Getenv("FREELANCEHUB_API"); url != "" {
		return strings.TrimRight(url, "/")
	}
	return "http://localhost:8080/api"
}

func credentialsFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".freelancehub", "session.json")
}

func printUsage() {
	fmt.Print(`FreelanceHub CLI

Usage:
  fhctl <command> [options]

Commands:
  auth           Authentication (register, login, logout, status, password)
  jobs           Job postings (list, mine, create, publish, cancel)
  bids           Bidding (submit, mine, job, employer, accept, decline, cancel)
  notifications  Notifications (list, read, read-all, clear)
  help           Show this help message

Environment Variables:
  FREELANCEHUB_API    API endpoint (default: http://localhost:8080/api)

Examples:
  fhctl auth register -email ann@example.com -name Ann -type writer
  fhctl auth login -email emp@example.com -type employer
  fhctl jobs create -title "Essay" -description "Five pages" -budget 150 -publish
  fhctl bids submit -job JOB-ABC -amount 120 -days 3
  fhctl bids accept BID-XYZ
`)
}
