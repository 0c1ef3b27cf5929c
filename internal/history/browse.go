package history

import (
	"github.com/trilayer/trilayer/internal/isolation"
)

// Manager is the business surface over the store. It derives isolation
// keys on behalf of callers and exposes the four browsing modes, each a
// progressively wider relaxation of the partition filter:
//
//	current-isolation   exact isolation_key
//	project-browsing    client + worker, any project
//	environment-browsing client only
//	global-browsing     no filter
//
// All modes share the same ordering contract: created_at descending,
// paginated by limit/offset.
type Manager struct {
	store *Store
}

// NewManager wraps an open store.
func NewManager(store *Store) *Manager {
	return &Manager{store: store}
}

// FeedbackImage is an image attachment as handed over by the capture
// layer: original path, display name, raw bytes.
type FeedbackImage struct {
	Path string
	Name string
	Data []byte
}

// SaveFeedbackSession is the sole write entry point. It derives the
// isolation key and project name from the raw identity inputs, then
// saves the record and its images atomically. Returns the session id.
func (m *Manager) SaveFeedbackSession(clientName, worker, projectDirectory, aiPrompt, userFeedback, commandLogs string, images []FeedbackImage) (string, error) {
	record := &ConversationRecord{
		IsolationKey:     isolation.Key(clientName, worker, projectDirectory),
		ClientName:       clientName,
		Worker:           worker,
		ProjectName:      isolation.ProjectName(projectDirectory),
		ProjectDirectory: projectDirectory,
		AIPrompt:         aiPrompt,
		UserFeedback:     userFeedback,
		CommandLogs:      commandLogs,
	}

	convImages := make([]ConversationImage, 0, len(images))
	for _, img := range images {
		convImages = append(convImages, ConversationImage{
			ImagePath: img.Path,
			ImageName: img.Name,
			ImageData: img.Data,
		})
	}

	return m.store.Save(record, convImages)
}

// CurrentIsolationHistory returns records for the exact
// (client, worker, project) partition.
func (m *Manager) CurrentIsolationHistory(clientName, worker, projectDirectory string, limit, offset int) ([]ConversationRecord, error) {
	key := isolation.Key(clientName, worker, projectDirectory)
	return m.store.Conversations(key, limit, offset)
}

// SearchCurrentIsolation does a free-text search within the exact
// partition.
func (m *Manager) SearchCurrentIsolation(clientName, worker, projectDirectory, query string, limit int) ([]ConversationRecord, error) {
	key := isolation.Key(clientName, worker, projectDirectory)
	return m.store.Search(key, query, limit)
}

// ProjectBrowsingHistory returns records for one client and worker
// across all projects.
func (m *Manager) ProjectBrowsingHistory(clientName, worker string, limit, offset int) ([]ConversationRecord, error) {
	limit, offset = clampPage(limit, offset)
	return m.store.queryRecords(selectRecord+`
		WHERE client_name = ? AND worker = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		clientName, worker, limit, offset)
}

// EnvironmentBrowsingHistory returns records for one client across all
// workers and projects.
func (m *Manager) EnvironmentBrowsingHistory(clientName string, limit, offset int) ([]ConversationRecord, error) {
	limit, offset = clampPage(limit, offset)
	return m.store.queryRecords(selectRecord+`
		WHERE client_name = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		clientName, limit, offset)
}

// GlobalBrowsingHistory returns records across every client, worker,
// and project.
func (m *Manager) GlobalBrowsingHistory(limit, offset int) ([]ConversationRecord, error) {
	limit, offset = clampPage(limit, offset)
	return m.store.queryRecords(selectRecord+`
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`,
		limit, offset)
}

// SearchByFilters composes free-text search with zero or more identity
// filters, ANDed together. An empty filter means no constraint on that
// dimension, not an empty-string match. projectName filters on the
// stored project name, not the derived key segment.
func (m *Manager) SearchByFilters(query, clientName, worker, projectName string, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	sqlStr := selectRecord + ` WHERE 1=1`
	args := []any{}

	if query != "" {
		sqlStr += ` AND (ai_prompt LIKE ? OR user_feedback LIKE ? OR command_logs LIKE ?)`
		pattern := "%" + query + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if clientName != "" {
		sqlStr += ` AND client_name = ?`
		args = append(args, clientName)
	}
	if worker != "" {
		sqlStr += ` AND worker = ?`
		args = append(args, worker)
	}
	if projectName != "" {
		sqlStr += ` AND project_name = ?`
		args = append(args, projectName)
	}

	sqlStr += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	return m.store.queryRecords(sqlStr, args...)
}

// AvailableClients lists the distinct client names stored, exactly as
// the capture layer supplied them.
func (m *Manager) AvailableClients() ([]string, error) {
	return m.store.queryStrings(
		`SELECT DISTINCT client_name FROM conversations ORDER BY client_name`)
}

// AvailableWorkers lists the distinct workers, optionally narrowed to
// one client.
func (m *Manager) AvailableWorkers(clientName string) ([]string, error) {
	if clientName != "" {
		return m.store.queryStrings(
			`SELECT DISTINCT worker FROM conversations WHERE client_name = ? ORDER BY worker`,
			clientName)
	}
	return m.store.queryStrings(
		`SELECT DISTINCT worker FROM conversations ORDER BY worker`)
}

// AvailableProjects lists the distinct project names, optionally
// narrowed to one client and worker.
func (m *Manager) AvailableProjects(clientName, worker string) ([]string, error) {
	switch {
	case clientName != "" && worker != "":
		return m.store.queryStrings(
			`SELECT DISTINCT project_name FROM conversations WHERE client_name = ? AND worker = ? ORDER BY project_name`,
			clientName, worker)
	case clientName != "":
		return m.store.queryStrings(
			`SELECT DISTINCT project_name FROM conversations WHERE client_name = ? ORDER BY project_name`,
			clientName)
	default:
		return m.store.queryStrings(
			`SELECT DISTINCT project_name FROM conversations ORDER BY project_name`)
	}
}

// Delete removes one record from the caller's current isolation. The
// key is re-derived from the identity inputs, so a session id from
// another partition cannot be deleted by guessing.
func (m *Manager) Delete(clientName, worker, projectDirectory, sessionID string) (bool, error) {
	key := isolation.Key(clientName, worker, projectDirectory)
	return m.store.Delete(sessionID, key)
}
