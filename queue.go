package pgfront

// The task queue serialises query execution on the single connection: the
// head of the queue is the query in flight, every inbound frame belongs to
// it, and the queue only advances on ReadyForQuery. Queries are referenced,
// not owned; the caller keeps them alive while enqueued.

// submit appends the query to the task queue and starts it immediately when
// it becomes the queue head. Completion callbacks collected while the lock
// is held fire afterwards.
func (conn *Connection) submit(query *Query) {
	var deferred []func()

	conn.mu.Lock()
	switch {
	case conn.conn == nil || !conn.authenticated || conn.closed:
		deferred = append(deferred, query.fail(local("connection is not established")))
	default:
		conn.tasks = append(conn.tasks, query)
		if conn.tasks[0] == query {
			deferred = conn.start(query)
		}
	}
	conn.mu.Unlock()

	fire(deferred)
}

// start serialises the request frames for the given query: a one-shot
// parse-bind-execute, a prepare-and-describe, or a bind-and-execute of the
// prepared statement. The caller holds conn.mu; callbacks to fire once the
// lock is released are returned.
func (conn *Connection) start(query *Query) []func() {
	conn.complete = false

	prepared, prepareDone, name, sql := query.task()

	var err error
	switch {
	case !prepared:
		err = conn.writeSimpleExec(sql)
	case !prepareDone:
		err = conn.writePrepare(name, sql)
	default:
		return conn.startBind(query)
	}

	if err != nil {
		return []func(){conn.transportFailure(err)}
	}
	return nil
}

// startBind encodes the bound values and serialises Bind, Execute and Sync.
// A binding failure abandons the submission before any byte is written; the
// queue is intentionally not advanced since no server state is in flight.
func (conn *Connection) startBind(query *Query) []func() {
	name, oids, values := query.bindings()

	params, err := encodeBindings(oids, values)
	if err != nil {
		return []func(){query.fail(local(err.Error()))}
	}

	if err := conn.writeBind(name, params); err != nil {
		return []func(){conn.transportFailure(err)}
	}
	return nil
}

// endTask dequeues the head query, resolves its completion signal and
// starts the next pending query. Invoked on ReadyForQuery with an idle or
// in-transaction status.
func (conn *Connection) endTask() {
	var deferred []func()

	conn.mu.Lock()
	if len(conn.tasks) > 0 {
		query := conn.tasks[0]
		conn.tasks = conn.tasks[1:]
		conn.complete = false

		deferred = append(deferred, query.finish())

		if len(conn.tasks) > 0 {
			deferred = append(deferred, conn.start(conn.tasks[0])...)
		}
	}
	conn.mu.Unlock()

	fire(deferred)
}

// transportFailure marks the connection broken after a failed write. The
// caller holds conn.mu; the returned callback reports the failure once the
// lock is released.
func (conn *Connection) transportFailure(err error) func() {
	message := local(err.Error())
	transport := conn.conn
	authenticated := conn.authenticated
	conn.closed = true
	conn.authenticated = false

	return func() {
		if transport != nil {
			_ = transport.Close()
		}

		if conn.Error != nil {
			conn.Error(message)
		}

		if authenticated && conn.Disconnected != nil {
			conn.Disconnected()
		}
	}
}

func fire(deferred []func()) {
	for _, deliver := range deferred {
		if deliver != nil {
			deliver()
		}
	}
}
