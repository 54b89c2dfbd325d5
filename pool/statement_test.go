package pool

import (
	"context"
	"testing"
	"time"

	_ "github.com/karolsteve/libzdb/driverapi"
)

func prepareTestTable(t *testing.T, c *Connection, ddl string) {
	t.Helper()
	if _, err := c.Execute(context.Background(), ddl); err != nil {
		t.Fatalf("create table: %v", err)
	}
}

func TestBindIntRoundTrip(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE bind_int (n INTEGER)")
	stmt, err := c.Prepare(ctx, "INSERT INTO bind_int (n) VALUES (?)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := stmt.BindInt(1, 42); err != nil {
		t.Fatalf("BindInt: %v", err)
	}
	if _, err := stmt.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	stmt.Close()

	rs, err := c.ExecuteQuery(ctx, "SELECT n FROM bind_int")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}
	n, err := rs.GetInt(1)
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if n != 42 {
		t.Errorf("GetInt = %d, want 42", n)
	}
}

func TestBindBlobEmptyBindsNull(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE bind_blob (b BLOB)")
	stmt, err := c.Prepare(ctx, "INSERT INTO bind_blob (b) VALUES (?)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := stmt.BindBlob(1, []byte{}); err != nil {
		t.Fatalf("BindBlob: %v", err)
	}
	if _, err := stmt.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	stmt.Close()

	rs, err := c.ExecuteQuery(ctx, "SELECT b FROM bind_blob")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}
	isNull, err := rs.IsNull(1)
	if err != nil {
		t.Fatalf("IsNull: %v", err)
	}
	if !isNull {
		t.Error("expected an empty []byte bind to store SQL null, not a zero-length blob")
	}
}

func TestBindBlobNonEmptyRoundTrip(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE bind_blob2 (b BLOB)")
	stmt, err := c.Prepare(ctx, "INSERT INTO bind_blob2 (b) VALUES (?)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	want := []byte{0x01, 0x02, 0x03, 0xff}
	if err := stmt.BindBlob(1, want); err != nil {
		t.Fatalf("BindBlob: %v", err)
	}
	if _, err := stmt.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	stmt.Close()

	rs, err := c.ExecuteQuery(ctx, "SELECT b FROM bind_blob2")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}
	got, err := rs.GetBlob(1)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("GetBlob = %v, want %v", got, want)
	}
}

func TestBindTimestampRoundTrip(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE bind_ts (t TIMESTAMP)")
	stmt, err := c.Prepare(ctx, "INSERT INTO bind_ts (t) VALUES (?)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	want := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC).Unix()
	if err := stmt.BindTimestamp(1, want); err != nil {
		t.Fatalf("BindTimestamp: %v", err)
	}
	if _, err := stmt.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	stmt.Close()

	rs, err := c.ExecuteQuery(ctx, "SELECT t FROM bind_ts")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}
	got, err := rs.GetTimestamp(1)
	if err != nil {
		t.Fatalf("GetTimestamp: %v", err)
	}
	if got != want {
		t.Errorf("GetTimestamp = %d, want %d", got, want)
	}
}

func TestBindNull(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE bind_null (v TEXT)")
	stmt, err := c.Prepare(ctx, "INSERT INTO bind_null (v) VALUES (?)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := stmt.BindNull(1); err != nil {
		t.Fatalf("BindNull: %v", err)
	}
	if _, err := stmt.Execute(ctx); err != nil {
		t.Fatalf("execute: %v", err)
	}
	stmt.Close()

	rs, err := c.ExecuteQuery(ctx, "SELECT v FROM bind_null")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("Next() = %v, %v", ok, err)
	}
	isNull, err := rs.IsNull(1)
	if err != nil {
		t.Fatalf("IsNull: %v", err)
	}
	if !isNull {
		t.Error("expected BindNull to store SQL null")
	}
}

func TestCheckOpenPanicsAfterClose(t *testing.T) {
	p := newTestPool(t, WithInitial(1), WithMax(1))
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	c, err := p.GetConnection(context.Background())
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	defer p.ReturnConnection(c)

	ctx := context.Background()
	prepareTestTable(t, c, "CREATE TABLE closed_stmt (n INTEGER)")
	stmt, err := c.Prepare(ctx, "INSERT INTO closed_stmt (n) VALUES (?)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	stmt.Close()

	defer func() {
		if recover() == nil {
			t.Error("expected BindInt on a closed statement to panic via Assertf")
		}
	}()
	_ = stmt.BindInt(1, 1)
}
