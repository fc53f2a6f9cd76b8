package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/daybook-app/daybook/internal/client/models"
)

func (a *App) requireLogin() error {
	if !a.isLoggedIn() {
		fmt.Println("Please login first")
		return fmt.Errorf("not logged in")
	}
	return nil
}

func (a *App) Register(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	if err := a.auth.Register(ctx, username, string(password)); err != nil {
		fmt.Println("Registration failed:", err)
		return err
	}
	fmt.Println("Registered. You can login now.")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Enter username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	owner, err := a.auth.Login(ctx, username, string(password))
	if err != nil {
		fmt.Println("Login failed:", err)
		return err
	}
	a.startSession(ctx, owner)
	fmt.Println("Logged in.")
	return nil
}

func (a *App) Add(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	title, err := GetSimpleText(a.reader, "Title", os.Stdout)
	if err != nil {
		return err
	}
	mood, err := GetSimpleText(a.reader, "Mood (optional)", os.Stdout)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Body", os.Stdout)
	if err != nil {
		return err
	}

	entry := models.NewEntry(a.owner, title, body)
	entry.Mood = mood
	if err := a.syncer.Save(ctx, entry); err != nil {
		// the entry is durable locally even when the push failed
		fmt.Println("Saved locally, sync pending:", err)
		return nil
	}
	fmt.Println("Saved:", entry.Id)
	return nil
}

func (a *App) List(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	list, err := a.syncer.List(ctx)
	if err != nil {
		fmt.Println("Failed to list entries:", err)
		return err
	}
	if len(list) == 0 {
		fmt.Println("No entries yet")
		return nil
	}
	for _, e := range list {
		marker := " "
		if e.Pending() {
			marker = "*"
		}
		fmt.Printf("%s %s  %s  %s\n", marker, e.Id, e.LastModified.Format("2006-01-02 15:04"), e.Title)
	}
	return nil
}

func (a *App) Show(ctx context.Context, id string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	entry, err := a.syncer.Get(ctx, id)
	if err != nil {
		fmt.Println("Failed to load entry:", err)
		return err
	}
	fmt.Println("Title:", entry.Title)
	if entry.Mood != "" {
		fmt.Println("Mood:", entry.Mood)
	}
	fmt.Println("Modified:", entry.LastModified.Format("2006-01-02 15:04:05"))
	fmt.Println("Status:", entry.Status)
	fmt.Println()
	fmt.Println(entry.Body)
	if len(entry.Attachments) > 0 {
		fmt.Println()
		for _, ref := range entry.Attachments {
			state := "pending upload"
			if ref.Uploaded() {
				state = "uploaded"
			}
			fmt.Printf("attachment: %s (%s)\n", ref.LocalPath, state)
		}
	}
	return nil
}

// Edit re-prompts for the entry fields. An empty answer keeps the current
// value.
func (a *App) Edit(ctx context.Context, id string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	entry, err := a.syncer.Get(ctx, id)
	if err != nil {
		fmt.Println("Failed to load entry:", err)
		return err
	}

	title, err := GetSimpleText(a.reader, fmt.Sprintf("Title [%s]", entry.Title), os.Stdout)
	if err != nil {
		return err
	}
	mood, err := GetSimpleText(a.reader, fmt.Sprintf("Mood [%s]", entry.Mood), os.Stdout)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Body (empty keeps current)", os.Stdout)
	if err != nil {
		return err
	}

	if title != "" {
		entry.Title = title
	}
	if mood != "" {
		entry.Mood = mood
	}
	if body != "" {
		entry.Body = body
	}

	if err := a.syncer.Save(ctx, entry); err != nil {
		fmt.Println("Saved locally, sync pending:", err)
		return nil
	}
	fmt.Println("Saved.")
	return nil
}

func (a *App) Delete(ctx context.Context, id string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if err := a.attachments.DeleteEntry(ctx, id); err != nil {
		fmt.Println("Failed to delete entry:", err)
		return err
	}
	fmt.Println("Deleted.")
	return nil
}

func (a *App) Attach(ctx context.Context, id string, paths []string) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	entry, err := a.syncer.Get(ctx, id)
	if err != nil {
		fmt.Println("Failed to load entry:", err)
		return err
	}

	images := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			fmt.Println("Failed to read file:", err)
			continue
		}
		images = append(images, data)
	}
	if len(images) == 0 {
		return fmt.Errorf("no readable files")
	}

	before := len(entry.Attachments)
	if err := a.attachments.Attach(ctx, entry, images); err != nil {
		fmt.Println("Attachment finished with errors:", err)
		return err
	}
	fmt.Printf("Attached %d image(s).\n", len(entry.Attachments)-before)
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	if err := a.syncer.DrainPending(ctx); err != nil {
		fmt.Println("Some changes could not be pushed:", err)
	}
	if err := a.attachments.DrainUploads(ctx); err != nil {
		fmt.Println("Some uploads could not be finished:", err)
	}
	list, err := a.syncer.Fetch(ctx)
	if err != nil {
		fmt.Println("Failed to fetch remote entries:", err)
		return err
	}
	fmt.Printf("In sync, %d entries.\n", len(list))
	return nil
}

func (a *App) Prompt(ctx context.Context, topic string) error {
	prompt := a.prompts.Prompt(ctx, strings.TrimSpace(topic))
	fmt.Println(prompt)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		fmt.Println("Logout failed:", err)
		return err
	}
	a.endSession()
	fmt.Println("Logged out.")
	return nil
}
