package postgres

const (
	userColumns          = `id, name, email, avatar, created_at, updated_at`
	changeRequestColumns = `id, title, description, status, owner_id, due_date, created_at, updated_at`
	taskColumns          = `id, change_request_id, description, status, assigned_to, created_at, updated_at`
)

const (
	queryListUsers = `SELECT ` + userColumns + ` FROM users ORDER BY name ASC, id ASC`

	queryListUsersByIDs = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) ORDER BY name ASC, id ASC`

	queryInsertUser = `INSERT INTO users (id, name, email, avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns

	queryListChangeRequests = `SELECT ` + changeRequestColumns + ` FROM change_requests
		ORDER BY created_at DESC, id ASC`

	queryListChangeRequestsForUser = `SELECT ` + changeRequestColumns + ` FROM change_requests cr
		WHERE cr.owner_id = $1
		   OR EXISTS (SELECT 1 FROM cr_developers d WHERE d.change_request_id = cr.id AND d.user_id = $1)
		ORDER BY cr.created_at DESC, cr.id ASC`

	queryGetChangeRequest = `SELECT ` + changeRequestColumns + ` FROM change_requests WHERE id = $1`

	queryListAssignments = `SELECT change_request_id, user_id FROM cr_developers
		WHERE change_request_id = ANY($1)
		ORDER BY change_request_id, user_id`

	queryListTasks = `SELECT ` + taskColumns + ` FROM tasks
		WHERE change_request_id = ANY($1)
		ORDER BY created_at ASC, id ASC`

	queryGetTask = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	queryInsertChangeRequest = `INSERT INTO change_requests
		(id, title, description, status, owner_id, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	queryInsertAssignment = `INSERT INTO cr_developers (change_request_id, user_id) VALUES ($1, $2)`

	queryInsertTask = `INSERT INTO tasks
		(id, change_request_id, description, status, assigned_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	queryUpdateChangeRequest = `UPDATE change_requests
		SET title = $2, description = $3, status = $4, due_date = $5, updated_at = $6
		WHERE id = $1`

	queryUpdateChangeRequestStatus = `UPDATE change_requests SET status = $2, updated_at = $3 WHERE id = $1`

	queryUpdateTaskStatus = `UPDATE tasks SET status = $2, updated_at = $3 WHERE id = $1`

	queryDeleteTasks = `DELETE FROM tasks WHERE change_request_id = $1`

	queryDeleteAssignments = `DELETE FROM cr_developers WHERE change_request_id = $1`

	queryDeleteChangeRequest = `DELETE FROM change_requests WHERE id = $1`
)
