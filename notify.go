package main

type Notifier interface {
	NotifyRunSummary(root string, summary RunSummary) error
}
