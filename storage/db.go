package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"musicseed-go/logcolors"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// ErrBackupsDisabled is returned by backup operations on a DB opened without a backup directory
var ErrBackupsDisabled = errors.New("backups are not configured")

// ErrClosed is returned by transactions on a closed DB
var ErrClosed = errors.New("database is closed")

var (
	ErrInvalidBackupName = errors.New("backup name must be a .db file name")
	ErrBackupNotFound    = errors.New("backup file not found")
)

// DB owns a bbolt database file shared by every persistent component
// (ledger, stats, history). Transactions hold a read lock on the handle so
// Restore can swap the underlying file without racing them.
type DB struct {
	mu         sync.RWMutex
	db         *bolt.DB
	dbPath     string
	backupPath string
	buckets    []string
}

// BackupInfo contains metadata about a backup file
type BackupInfo struct {
	FileName  string    `json:"fileName"`
	Size      int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Open opens (or creates) the database at dbPath and makes sure every named
// bucket exists. An empty backupPath disables backups.
func Open(dbPath, backupPath string, buckets ...string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if backupPath != "" {
		if err := os.MkdirAll(backupPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create backup directory: %w", err)
		}
	}

	if info, err := os.Stat(dbPath); err == nil {
		log.Infof("%s Found existing database at %s (size: %d bytes)", logcolors.LogStorage, dbPath, info.Size())
	} else {
		log.Infof("%s Creating new database at %s", logcolors.LogStorage, dbPath)
	}

	d := &DB{
		dbPath:     dbPath,
		backupPath: backupPath,
		buckets:    buckets,
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DB) open() error {
	db, err := bolt.Open(d.dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range d.buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create buckets: %w", err)
	}

	d.db = db
	return nil
}

// Path returns the database file path
func (d *DB) Path() string {
	return d.dbPath
}

// Update runs fn inside a read-write transaction
func (d *DB) Update(fn func(tx *bolt.Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrClosed
	}
	return d.db.Update(fn)
}

// View runs fn inside a read-only transaction
func (d *DB) View(fn func(tx *bolt.Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.db == nil {
		return ErrClosed
	}
	return d.db.View(fn)
}

// Backup writes a consistent copy of the database into the backup directory
// while it stays open. Returns the backup file name.
func (d *DB) Backup() (string, error) {
	if d.backupPath == "" {
		return "", ErrBackupsDisabled
	}

	name := fmt.Sprintf("musicseed_backup_%s.db", time.Now().Format("2006-01-02_15-04-05.000"))
	target := filepath.Join(d.backupPath, name)

	log.Infof("%s Creating backup at %s", logcolors.LogStorageBackup, target)

	err := d.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(target, 0600)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	log.Infof("%s Backup created: %s", logcolors.LogStorageBackup, name)
	return name, nil
}

// ListBackups returns the available backup files, newest first
func (d *DB) ListBackups() ([]BackupInfo, error) {
	if d.backupPath == "" {
		return nil, ErrBackupsDisabled
	}

	backups := []BackupInfo{}

	entries, err := os.ReadDir(d.backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return backups, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warnf("%s Failed to stat %s: %v", logcolors.LogStorageBackup, entry.Name(), err)
			continue
		}

		backups = append(backups, BackupInfo{
			FileName:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Restore replaces the live database with a backup. Transactions are blocked
// for the duration of the swap.
func (d *DB) Restore(fileName string) error {
	source, err := d.backupFile(fileName)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrClosed
	}

	log.Infof("%s Restoring from %s", logcolors.LogStorageBackup, fileName)

	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	d.db = nil

	preRestore := d.dbPath + ".pre-restore"
	if err := copyFile(d.dbPath, preRestore); err != nil {
		if reopenErr := d.open(); reopenErr != nil {
			log.Errorf("%s Failed to reopen database: %v", logcolors.LogStorageBackup, reopenErr)
		}
		return fmt.Errorf("failed to save current database: %w", err)
	}

	if err := copyFile(source, d.dbPath); err != nil {
		copyFile(preRestore, d.dbPath)
		if reopenErr := d.open(); reopenErr != nil {
			log.Errorf("%s Failed to reopen database: %v", logcolors.LogStorageBackup, reopenErr)
		}
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	os.Remove(preRestore)

	if err := d.open(); err != nil {
		return fmt.Errorf("failed to reopen database after restore: %w", err)
	}

	log.Infof("%s Restored from %s", logcolors.LogStorageBackup, fileName)
	return nil
}

// DeleteBackup deletes a backup file
func (d *DB) DeleteBackup(fileName string) error {
	path, err := d.backupFile(fileName)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	log.Infof("%s Deleted backup %s", logcolors.LogStorageBackup, fileName)
	return nil
}

func (d *DB) backupFile(fileName string) (string, error) {
	if d.backupPath == "" {
		return "", ErrBackupsDisabled
	}
	if filepath.Ext(fileName) != ".db" || strings.ContainsAny(fileName, `/\`) {
		return "", fmt.Errorf("%q: %w", fileName, ErrInvalidBackupName)
	}

	path := filepath.Join(d.backupPath, fileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("%s: %w", fileName, ErrBackupNotFound)
	}
	return path, nil
}

// Close closes the database
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}
