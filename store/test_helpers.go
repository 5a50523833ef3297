package store

import (
	"context"
	"errors"

	"github.com/gleanhub/go-claimsync/models"
)

type FakeKvRepository struct {
	records     map[string][]byte
	failGets    bool
	failPuts    bool
	failDeletes bool
	numPuts     int
	numDeletes  int
}

func NewFakeKvRepository() *FakeKvRepository {
	return &FakeKvRepository{records: make(map[string][]byte)}
}

func (f *FakeKvRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGets {
		return nil, false, errors.New("TestError")
	}
	data, found := f.records[key]
	return data, found, nil
}

func (f *FakeKvRepository) Put(ctx context.Context, key string, value []byte) error {
	if f.failPuts {
		return errors.New("TestError")
	}
	f.numPuts = f.numPuts + 1
	f.records[key] = value
	return nil
}

func (f *FakeKvRepository) Delete(ctx context.Context, key string) error {
	if f.failDeletes {
		return errors.New("TestError")
	}
	f.numDeletes = f.numDeletes + 1
	delete(f.records, key)
	return nil
}

type FakeMetricService struct {
	models.MetricService
	counts map[models.MetricName]int
}

func (f *FakeMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	if f.counts == nil {
		f.counts = make(map[models.MetricName]int)
	}
	f.counts[name] = f.counts[name] + val
	return nil
}
