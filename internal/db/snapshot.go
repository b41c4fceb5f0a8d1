package db

import (
	"encoding/json"
	"reflect"

	"gorm.io/gorm"
)

// TrackedTables are the tables whose mutations are audited and published.
var TrackedTables = map[string]bool{
	"centers":      true,
	"user_centers": true,
	"shortages":    true,
}

const (
	callbackSnapshotUpdate = "bloodboard:snapshot_update"
	callbackSnapshotDelete = "bloodboard:snapshot_delete"
	oldRowsKey             = "bloodboard:old_rows"
)

// change is one row affected by a statement.
type change struct {
	id       any
	centerID string
	old      map[string]any
	new      map[string]any
}

type centerScoped interface{ GetCenterID() string }

func tracked(db *gorm.DB) bool {
	return db.Error == nil && db.Statement.Schema != nil && TrackedTables[db.Statement.Table]
}

// registerSnapshots installs the callbacks that capture rows before update/delete.
// Both plugins need them; registration is skipped when already present.
func registerSnapshots(db *gorm.DB) error {
	if db.Callback().Update().Get(callbackSnapshotUpdate) == nil {
		if err := db.Callback().Update().Before("gorm:update").Register(callbackSnapshotUpdate, snapshotOld); err != nil {
			return err
		}
	}
	if db.Callback().Delete().Get(callbackSnapshotDelete) == nil {
		if err := db.Callback().Delete().Before("gorm:delete").Register(callbackSnapshotDelete, snapshotOld); err != nil {
			return err
		}
	}
	return nil
}

func snapshotOld(db *gorm.DB) {
	if !tracked(db) {
		return
	}
	if _, ok := db.InstanceGet(oldRowsKey); ok {
		return
	}
	var rows []change
	for _, id := range primaryKeys(db) {
		if old := loadRow(db, id); old != nil {
			rows = append(rows, change{id: id, old: old, centerID: centerOf(db.Statement.Table, old)})
		}
	}
	db.InstanceSet(oldRowsKey, rows)
}

// changes returns the rows affected by the statement with their old and new images.
func changes(db *gorm.DB, withNew bool) []change {
	var rows []change
	if v, ok := db.InstanceGet(oldRowsKey); ok {
		rows, _ = v.([]change)
	} else {
		for _, id := range primaryKeys(db) {
			rows = append(rows, change{id: id})
		}
	}
	if !withNew {
		return rows
	}
	for i := range rows {
		rows[i].new = loadRow(db, rows[i].id)
		if rows[i].new != nil {
			rows[i].centerID = centerOf(db.Statement.Table, rows[i].new)
		}
	}
	return rows
}

// primaryKeys lists the non-zero primary key values held by the statement's model.
func primaryKeys(db *gorm.DB) []any {
	stmt := db.Statement
	pk := stmt.Schema.PrioritizedPrimaryField
	if pk == nil {
		return nil
	}
	var ids []any
	add := func(rv reflect.Value) {
		rv = reflect.Indirect(rv)
		if rv.Kind() != reflect.Struct {
			return
		}
		if v, zero := pk.ValueOf(stmt.Context, rv); !zero {
			ids = append(ids, v)
		}
	}
	collect := func(rv reflect.Value) {
		rv = reflect.Indirect(rv)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < rv.Len(); i++ {
				add(rv.Index(i))
			}
		default:
			add(rv)
		}
	}
	collect(stmt.ReflectValue)
	// Model(&row).Updates(map) keeps the key on the model, not on the destination
	if len(ids) == 0 && stmt.Model != nil {
		collect(reflect.ValueOf(stmt.Model))
	}
	return ids
}

// loadRow reads the row by primary key through the statement's connection,
// so it sees the statement's own transaction.
func loadRow(db *gorm.DB, id any) map[string]any {
	stmt := db.Statement
	row := reflect.New(stmt.Schema.ModelType).Interface()
	err := db.Session(&gorm.Session{NewDB: true}).
		Table(stmt.Table).
		Where(stmt.Schema.PrioritizedPrimaryField.DBName+" = ?", id).
		Take(row).Error
	if err != nil {
		return nil
	}
	return toMap(row)
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	delete(m, "centers")
	return m
}

func centerOf(table string, row map[string]any) string {
	key := "center_id"
	if table == "centers" {
		key = "id"
	}
	s, _ := row[key].(string)
	return s
}
