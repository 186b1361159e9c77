package store

import "testing"

func TestMemInstanceCachePutGet(t *testing.T) {
	c := NewMemInstanceCache()
	c.Put(1, "Device.WiFi.Radio.", []string{"1", "2"})

	got, ok := c.Get(1, "Device.WiFi.Radio.")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if len(got) != 2 || got[0] != "1" || got[1] != "2" {
		t.Errorf("Get() = %v, want [1 2]", got)
	}
}

func TestMemInstanceCacheGetMiss(t *testing.T) {
	c := NewMemInstanceCache()
	if _, ok := c.Get(1, "Device.WiFi.Radio."); ok {
		t.Error("Get() on empty cache should return ok=false")
	}
	c.Put(1, "Device.WiFi.Radio.", []string{"1"})
	if _, ok := c.Get(1, "Device.Ethernet.Interface."); ok {
		t.Error("Get() on a different objPath under the same instance should miss")
	}
}

func TestMemInstanceCacheDrop(t *testing.T) {
	c := NewMemInstanceCache()
	c.Put(1, "Device.WiFi.Radio.", []string{"1"})
	c.Drop(1)
	if _, ok := c.Get(1, "Device.WiFi.Radio."); ok {
		t.Error("Get() after Drop should return ok=false")
	}
}
