// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点

	// 单次等待前一个节点的最长时间，超时后重新检查子节点
	watchTimeout = 30 * time.Second
)

// DistributedLock 基于临时顺序节点的分布式互斥锁
type DistributedLock struct {
	conn *Conn
	path string // 锁的路径，例如 /distributed_locks/inventory-reaper

	mu       sync.Mutex
	lockNode string // 获取锁后自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，必要时创建锁路径
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	if err := conn.ensurePath(lockRoot); err != nil {
		return nil, err
	}
	lockPath := lockRoot + "/" + resourceID
	if err := conn.ensurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 获取锁，拿不到时阻塞等待，直到 ctx 结束
func (l *DistributedLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockNode != "" {
		return errors.New("lock already held")
	}

	// 受保护的临时顺序节点，名称形如 _c_<guid>-lock-0000000001
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	myNode := strings.TrimPrefix(nodePath, l.path+"/")

	if err := l.waitTurn(ctx, myNode); err != nil {
		_ = l.conn.Delete(nodePath, -1)
		return err
	}
	l.lockNode = nodePath
	return nil
}

func (l *DistributedLock) waitTurn(ctx context.Context, myNode string) error {
	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			return errors.Wrap(err, "list lock children")
		}
		sortBySequence(children)

		prev, err := predecessor(children, myNode)
		if err != nil {
			return err
		}
		if prev == "" {
			return nil
		}

		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + prev)
		if err != nil {
			return errors.Wrap(err, "watch previous node")
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
		case <-time.After(watchTimeout):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

// sequenceOf 返回节点名末尾的顺序号，受保护节点的 guid 前缀不参与排序
func sequenceOf(node string) string {
	if i := strings.LastIndex(node, "-"); i >= 0 {
		return node[i+1:]
	}
	return node
}

func sortBySequence(children []string) {
	sort.SliceStable(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

// predecessor 返回排在 me 之前的节点，me 最小时返回空字符串
func predecessor(sorted []string, me string) (string, error) {
	for i, child := range sorted {
		if child == me {
			if i == 0 {
				return "", nil
			}
			return sorted[i-1], nil
		}
	}
	return "", errors.Errorf("lock node %s not found among children", me)
}
