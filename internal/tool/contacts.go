package tool

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"deskpilot/internal/browser"
)

// ContactBook looks people up in the local Contacts app.
type ContactBook interface {
	LookupContact(ctx context.Context, name string) (string, error)
}

// --- retrieve_contact_from_device ---

type DeviceContactTool struct {
	book ContactBook
}

func NewDeviceContactTool(b ContactBook) *DeviceContactTool {
	return &DeviceContactTool{book: b}
}

func (t *DeviceContactTool) Name() string { return "retrieve_contact_from_device" }
func (t *DeviceContactTool) Description() string {
	return "Retrieve a contact's phone numbers and emails from the Contacts app on this device."
}
func (t *DeviceContactTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"name": {Type: "string", Description: "Full name as stored in Contacts"},
	}, []string{"name"})
}

func (t *DeviceContactTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	name, err := nameArg(args)
	if err != nil {
		return "", err
	}
	return t.book.LookupContact(ctx, name)
}

// --- retrieve_contact_online ---

const (
	googleContactsSearch = "https://contacts.google.com/search/"
	jsFirstLink          = `(document.querySelectorAll("a")[0] || {}).href || ""`
)

var ErrNoContact = errors.New("no matching contact found")

// OnlineContactTool searches Google Contacts in the browser and opens the
// first hit.
type OnlineContactTool struct {
	driver browser.Driver
}

func NewOnlineContactTool(d browser.Driver) *OnlineContactTool {
	return &OnlineContactTool{driver: d}
}

func (t *OnlineContactTool) Name() string { return "retrieve_contact_online" }
func (t *OnlineContactTool) Description() string {
	return "Retrieve contact information from the personal contact list on Google Contacts. " +
		"Use this before sending a text to a contact on iMessage."
}
func (t *OnlineContactTool) Parameters() map[string]any {
	return ToolParameters(map[string]Param{
		"name": {Type: "string", Description: "Name to search for"},
	}, []string{"name"})
}

func (t *OnlineContactTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	name, err := nameArg(args)
	if err != nil {
		return "", err
	}
	if err := t.driver.Open(ctx, googleContactsSearch+url.PathEscape(name)); err != nil {
		return "", err
	}
	href, err := t.driver.Eval(ctx, jsFirstLink)
	if err != nil {
		return "", err
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return "", ErrNoContact
	}
	if _, err := t.driver.Eval(ctx, navigateJS(href)); err != nil {
		return "", err
	}
	return href, nil
}

func nameArg(args map[string]any) (string, error) {
	for _, key := range []string{"name", "input"} {
		if s := strings.TrimSpace(ArgsString(args, key)); s != "" {
			return s, nil
		}
	}
	return "", errMissing("name")
}
