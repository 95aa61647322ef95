package models

type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
)

// Message хранится по пути rooms/{roomId}/messages/{messageId}.
type Message struct {
	ID        string      `json:"-"`
	Text      string      `json:"text"`
	Sender    string      `json:"sender"`
	Timestamp int64       `json:"timestamp"`
	Type      MessageType `json:"type"`
	FileURL   string      `json:"fileUrl,omitempty"`
	FileName  string      `json:"fileName,omitempty"`
	FileType  string      `json:"fileType,omitempty"`
}

// Preview возвращает строку для списка комнат.
func (m Message) Preview() string {
	switch {
	case m.Text != "":
		return m.Text
	case m.FileURL != "":
		return "File attachment"
	default:
		return "Message"
	}
}
