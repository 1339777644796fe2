package main

import (
	"fmt"
	"strconv"
	"time"

	"citetrack/internal/item"
	"citetrack/internal/textutil"
)

const urlColumnWidth = 60

func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", arg)
	}
	return id, nil
}

func stageLabel(stage item.Stage) string {
	return textutil.Humanize(string(stage))
}

func linkLabel(it item.URLItem) string {
	if it.Linked() {
		return it.ExternalItemKey
	}
	return "-"
}

func flagLabel(flag item.IntentFlag) string {
	if flag == item.IntentNone || flag == "" {
		return "-"
	}
	return string(flag)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
