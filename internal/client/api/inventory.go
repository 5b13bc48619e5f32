package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rfidvision/rfidlog/internal/models"
)

// BoxItemInput describes one item line when a box is created.
type BoxItemInput struct {
	Name        string `json:"item_name"`
	Description string `json:"item_description"`
	Quantity    int    `json:"quantity"`
}

// ContainerByUID fetches the box registered under uid. A 404 is returned as
// an error matching ErrNotFound.
func (c *Client) ContainerByUID(ctx context.Context, uid models.UID) (models.Container, error) {
	var box models.Container
	path := "/rfid-box/" + url.PathEscape(uid.String())
	if err := c.call(ctx, "container.getByUid", http.MethodGet, path, nil, nil, &box); err != nil {
		return models.Container{}, err
	}
	box.UID = models.NormalizeUID(string(box.UID))
	if box.Items == nil {
		box.Items = []models.ItemStock{}
	}
	return box, nil
}

// Containers lists every known box.
func (c *Client) Containers(ctx context.Context) ([]models.Container, error) {
	var boxes []models.Container
	if err := c.call(ctx, "container.list", http.MethodGet, "/get-all-boxes", nil, nil, &boxes); err != nil {
		return nil, err
	}
	for i := range boxes {
		boxes[i].UID = models.NormalizeUID(string(boxes[i].UID))
		if boxes[i].Items == nil {
			boxes[i].Items = []models.ItemStock{}
		}
	}
	return boxes, nil
}

// CreateContainer registers a box (or replaces the contents of an existing
// one) under uid.
func (c *Client) CreateContainer(ctx context.Context, uid models.UID, name string, items []BoxItemInput) error {
	if uid == "" || name == "" {
		return models.ErrEmptyName
	}
	for _, it := range items {
		if it.Name == "" {
			return models.ErrEmptyName
		}
		if it.Quantity < 0 {
			return fmt.Errorf("container.create: negative quantity for %q", it.Name)
		}
	}
	req := struct {
		UID   models.UID     `json:"uid"`
		Name  string         `json:"box_name"`
		Items []BoxItemInput `json:"items"`
	}{UID: uid, Name: name, Items: items}
	return c.call(ctx, "container.create", http.MethodPost, "/rfid-box/", nil, req, nil)
}

// Users lists all registered users.
func (c *Client) Users(ctx context.Context) ([]models.UserIdentity, error) {
	var users []models.UserIdentity
	if err := c.call(ctx, "user.list", http.MethodGet, "/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CheckUser looks a user up by name. ok is false when no such user exists.
func (c *Client) CheckUser(ctx context.Context, name string) (models.UserIdentity, bool, error) {
	name = models.NormalizeName(name)
	if name == "" {
		return models.UserIdentity{}, false, models.ErrEmptyName
	}
	var resp struct {
		Exists bool `json:"exists"`
		ID     int  `json:"id"`
	}
	path := "/check-user?name=" + url.QueryEscape(name)
	if err := c.call(ctx, "user.check", http.MethodGet, path, nil, nil, &resp); err != nil {
		return models.UserIdentity{}, false, err
	}
	if !resp.Exists {
		return models.UserIdentity{}, false, nil
	}
	return models.UserIdentity{UserID: resp.ID, Name: name}, true, nil
}

// CreateUser registers a user by name and returns its identity.
func (c *Client) CreateUser(ctx context.Context, name string) (models.UserIdentity, error) {
	name = models.NormalizeName(name)
	if name == "" {
		return models.UserIdentity{}, models.ErrEmptyName
	}
	var resp struct {
		UserID int `json:"user_id"`
	}
	req := map[string]string{"name": name}
	if err := c.call(ctx, "user.create", http.MethodPost, "/add-user", nil, req, &resp); err != nil {
		return models.UserIdentity{}, err
	}
	return models.UserIdentity{UserID: resp.UserID, Name: name}, nil
}

// UpdateUser renames a user. A taken name comes back as a 409 StatusError.
func (c *Client) UpdateUser(ctx context.Context, userID int, name string) (models.UserIdentity, error) {
	name = models.NormalizeName(name)
	if name == "" {
		return models.UserIdentity{}, models.ErrEmptyName
	}
	req := map[string]string{"name": name}
	path := "/update-user/" + strconv.Itoa(userID)
	if err := c.call(ctx, "user.update", http.MethodPut, path, nil, req, nil); err != nil {
		return models.UserIdentity{}, err
	}
	return models.UserIdentity{UserID: userID, Name: name}, nil
}

// DeleteUser removes a user along with its holdings and logs.
func (c *Client) DeleteUser(ctx context.Context, userID int) error {
	path := "/delete-user/" + strconv.Itoa(userID)
	return c.call(ctx, "user.delete", http.MethodDelete, path, nil, nil, nil)
}

// UserItems returns the items a user currently holds. The backend answers
// either a bare array or {"message": ..., "items": [...]}.
func (c *Client) UserItems(ctx context.Context, userID int) ([]models.SessionItemEntry, error) {
	var raw json.RawMessage
	path := "/user-items/" + strconv.Itoa(userID)
	if err := c.call(ctx, "user.itemsFor", http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}

	var items []models.SessionItemEntry
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Items []models.SessionItemEntry `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("user.itemsFor: invalid response: %w", err)
	}
	if wrapped.Items == nil {
		wrapped.Items = []models.SessionItemEntry{}
	}
	return wrapped.Items, nil
}

// CreateLog submits a reconciled transaction. The SubmissionID travels as
// the Idempotency-Key header so a retried submission is recorded once.
func (c *Client) CreateLog(ctx context.Context, entry models.LogEntry) error {
	header := http.Header{}
	if entry.SubmissionID != "" {
		header.Set("Idempotency-Key", entry.SubmissionID)
	}
	return c.call(ctx, "log.create", http.MethodPost, "/create-log", header, entry, nil)
}
