package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				shop_id VARCHAR(255) NOT NULL,
				staff_id VARCHAR(255) NOT NULL,
				title VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				targeting JSONB NOT NULL DEFAULT '{}',
				trigger_type VARCHAR(100) NOT NULL,
				trigger_category VARCHAR(50) NOT NULL CHECK (trigger_category IN ('EVENT', 'SCHEDULE', 'PERIODIC')),
				trigger_config JSONB NOT NULL DEFAULT '{}',
				action_type VARCHAR(100) NOT NULL,
				action_config JSONB NOT NULL DEFAULT '{}',
				active BOOLEAN NOT NULL DEFAULT true,
				execution_count BIGINT NOT NULL DEFAULT 0,
				success_count BIGINT NOT NULL DEFAULT 0,
				failure_count BIGINT NOT NULL DEFAULT 0,
				success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				next_scheduled_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_workflows_shop_title ON workflows(shop_id, title) WHERE deleted_at IS NULL;
			CREATE INDEX idx_workflows_trigger ON workflows(shop_id, trigger_category, trigger_type) WHERE deleted_at IS NULL AND active;
			CREATE INDEX idx_workflows_next_scheduled_at ON workflows(next_scheduled_at) WHERE deleted_at IS NULL AND active;

			CREATE TABLE workflow_executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id),
				shop_id VARCHAR(255) NOT NULL,
				source VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('PENDING', 'RUNNING', 'SUCCEEDED', 'PARTIALLY_FAILED', 'FAILED')),
				target_count INTEGER NOT NULL DEFAULT 0,
				success_count INTEGER NOT NULL DEFAULT 0,
				failure_count INTEGER NOT NULL DEFAULT 0,
				error_summary TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_executions_workflow ON workflow_executions(workflow_id, created_at DESC);
			CREATE INDEX idx_workflow_executions_shop ON workflow_executions(shop_id, created_at);
			CREATE INDEX idx_workflow_executions_unfinished ON workflow_executions(workflow_id) WHERE status IN ('PENDING', 'RUNNING');

			CREATE TABLE automation_outbox (
				id UUID PRIMARY KEY,
				event_type VARCHAR(100) NOT NULL,
				event_key VARCHAR(255) NOT NULL,
				payload JSONB NOT NULL,
				attempts INTEGER NOT NULL DEFAULT 0,
				last_error TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				published_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_automation_outbox_pending ON automation_outbox(created_at) WHERE published_at IS NULL;
		`,
		2: `
			ALTER TABLE workflow_executions ADD COLUMN heartbeat_at TIMESTAMP WITH TIME ZONE;
		`,
	}
}
