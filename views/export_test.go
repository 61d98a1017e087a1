package views

import (
    . "github.com/PelionIoT/cacheviews/cluster"
)

// SeedCommittedView installs view as the committed view of cacheName without
// running the protocol
func (viewsManager *ViewsManager) SeedCommittedView(cacheName string, view View, listener ViewListener) {
    viewState := viewsManager.viewState(cacheName)
    viewState.SetListener(listener)
    viewState.PrepareView(view, viewState.CommittedView().ID())
    viewState.CommitView(view.ID())
}

func (viewsManager *ViewsManager) SeedPendingView(cacheName string, view View) {
    viewState := viewsManager.viewState(cacheName)
    viewState.PrepareView(view, viewState.CommittedView().ID())
}

func (viewsManager *ViewsManager) PendingJoiners(cacheName string) []Address {
    viewState, ok := viewsManager.existingViewState(cacheName)

    if !ok {
        return nil
    }

    return viewState.PendingChanges().Joiners()
}
